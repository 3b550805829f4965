package safety

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/chaoslab/faultplane/internal/config"
)

// killSwitch abstracts single-process vs Redis-coordinated state so Gate
// doesn't care which backs it.
type killSwitch interface {
	Engaged(ctx context.Context) bool
	Set(ctx context.Context, engaged bool) error
}

// localKillSwitch is an in-memory atomic.Bool, sufficient for a single
// chaosd instance.
type localKillSwitch struct {
	engaged atomic.Bool
}

func newLocalKillSwitch(initial bool) *localKillSwitch {
	ks := &localKillSwitch{}
	ks.engaged.Store(initial)
	return ks
}

func (k *localKillSwitch) Engaged(context.Context) bool { return k.engaged.Load() }

func (k *localKillSwitch) Set(_ context.Context, engaged bool) error {
	k.engaged.Store(engaged)
	return nil
}

// redisKillSwitch stores engaged state in a shared Redis key, grounded on
// the teacher's distributed-lock pattern (SET/GET against a well-known
// key), simplified here to a plain boolean flag rather than a lease —
// multiple chaosd replicas read the same key, so any one engaging the
// switch stops creates across the whole fleet.
type redisKillSwitch struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

const killSwitchKey = "faultplane:kill_switch"

func newRedisKillSwitch(cfg config.RedisConfig, initial bool, logger *slog.Logger) *redisKillSwitch {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ks := &redisKillSwitch{client: client, key: killSwitchKey, logger: logger}
	if initial {
		_ = ks.Set(context.Background(), true)
	}
	return ks
}

func (k *redisKillSwitch) Engaged(ctx context.Context) bool {
	val, err := k.client.Get(ctx, k.key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		k.logger.Error("kill switch redis read failed, failing safe to engaged", "error", err)
		return true
	}
	return val == "1"
}

func (k *redisKillSwitch) Set(ctx context.Context, engaged bool) error {
	value := "0"
	if engaged {
		value = "1"
	}
	return k.client.Set(ctx, k.key, value, 0).Err()
}
