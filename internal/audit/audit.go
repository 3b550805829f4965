// Package audit implements the append-only sink of every control action
// (attack create/stop, kill switch flips, remediation runs): always
// logged through log/slog, and additionally persisted to Postgres when a
// DSN is configured, for query/replay via the audit endpoint.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// recentEntriesPerKey bounds how many entries LogSink keeps per attack id
// (and for the "all attacks" bucket), so a long-running chaosd without a
// Postgres sink doesn't grow its in-memory history unbounded.
const recentEntriesPerKey = 200

// recentKeyCacheSize bounds how many distinct attack ids LogSink tracks
// at once, evicting the least recently touched once full.
const recentKeyCacheSize = 512

// allAttacksKey is the bucket LogSink uses for attack-id-less queries.
const allAttacksKey = ""

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Action    string            `json:"action"`
	AttackID  string            `json:"attack_id,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Sink records control actions. Record returns no error: a failure to
// persist an entry is logged, never surfaced to the caller. Record is not
// asynchronous — PostgresSink runs its INSERT on the caller's context
// before returning.
type Sink interface {
	Record(ctx context.Context, e Entry)
	Query(ctx context.Context, attackID string, limit int) ([]Entry, error)
}

// LogSink writes every entry to a structured logger and additionally
// keeps the last recentEntriesPerKey entries per attack id (plus an
// "all attacks" bucket) in memory, so /v1/audit still answers something
// useful when no Postgres DSN is configured — the always-available
// fallback sink.
type LogSink struct {
	logger *slog.Logger

	mu     sync.Mutex
	recent *lru.Cache[string, []Entry]
}

// NewLogSink builds a LogSink writing through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, []Entry](recentKeyCacheSize)
	return &LogSink{logger: logger, recent: cache}
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, e Entry) {
	s.logger.Info("audit",
		"action", e.Action,
		"attack_id", e.AttackID,
		"kind", e.Kind,
		"actor", e.Actor,
		"detail", e.Detail,
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(allAttacksKey, e)
	if e.AttackID != "" {
		s.appendLocked(e.AttackID, e)
	}
}

func (s *LogSink) appendLocked(key string, e Entry) {
	entries, _ := s.recent.Get(key)
	entries = append(entries, e)
	if len(entries) > recentEntriesPerKey {
		entries = entries[len(entries)-recentEntriesPerKey:]
	}
	s.recent.Add(key, entries)
}

// Query implements Sink, answering from the in-memory recent-entries
// cache (newest last) for attackID, or every attack's recent entries
// when attackID is empty.
func (s *LogSink) Query(ctx context.Context, attackID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	entries, _ := s.recent.Get(lookupKey(attackID))
	s.mu.Unlock()

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func lookupKey(attackID string) string {
	if attackID == "" {
		return allAttacksKey
	}
	return attackID
}
