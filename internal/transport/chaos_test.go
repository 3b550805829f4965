package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaoslab/faultplane/internal/audit"
	"github.com/chaoslab/faultplane/internal/config"
	"github.com/chaoslab/faultplane/internal/registry"
	"github.com/chaoslab/faultplane/internal/safety"
)

// selfTerminatingModule is a minimal registry.Module that completes
// immediately, enough to exercise the HTTP surface without a real adapter.
type selfTerminatingModule struct{}

func (selfTerminatingModule) Kind() registry.Kind { return registry.KindDBPool }

func (selfTerminatingModule) Validate(rawParams map[string]any) (any, error) {
	return rawParams, nil
}

func (selfTerminatingModule) Inject(ctx context.Context, params any) (registry.OwnedResources, registry.Result, error) {
	return nil, registry.Result{}, nil
}

func (selfTerminatingModule) Observe(ctx context.Context, resources registry.OwnedResources) (registry.Result, error) {
	return registry.Result{}, nil
}

func (selfTerminatingModule) Rollback(ctx context.Context, resources registry.OwnedResources, force bool) error {
	return nil
}

func newChaosTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	modules := map[registry.Kind]registry.Module{
		registry.KindDBPool: selfTerminatingModule{},
	}
	gate := safety.NewGate(config.Config{}, nil)
	engine := registry.NewEngine(modules, gate, nil)

	server := &ChaosServer{
		Engine:  engine,
		Gate:    gate,
		Modules: modules,
		Audit:   audit.NewLogSink(nil),
		Logger:  nil,
	}
	return httptest.NewServer(server.Router(100))
}

func TestChaosRouter_CreateStatusStopLifecycle(t *testing.T) {
	srv := newChaosTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/break/db_pool", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	attackID := created["attack_id"]
	require.NotEmpty(t, attackID)

	statusResp, err := http.Get(srv.URL + "/v1/break/db_pool/" + attackID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	stopResp, err := http.Post(srv.URL+"/v1/break/db_pool/"+attackID+"/stop", "application/json", nil)
	require.NoError(t, err)
	defer stopResp.Body.Close()
	assert.Equal(t, http.StatusOK, stopResp.StatusCode)
}

func TestChaosRouter_UnknownKindReturns404(t *testing.T) {
	srv := newChaosTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/break/bogus_kind", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChaosRouter_KillEngagesSwitch(t *testing.T) {
	srv := newChaosTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/kill", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthResp, err := http.Get(srv.URL + "/v1/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()

	var health map[string]any
	require.NoError(t, json.NewDecoder(healthResp.Body).Decode(&health))
	assert.Equal(t, true, health["kill_switch_engaged"])
}
