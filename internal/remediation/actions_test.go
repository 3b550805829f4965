package remediation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chaoslab/faultplane/internal/adapters/httpadapter"
)

func TestVerifyHealth_ReportsHealthyOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEngine(nil, httpadapter.New(time.Second), "target-api", "target-db", srv.URL)
	step := e.VerifyHealth(context.Background())

	assert.Equal(t, "success", step.Status)
	assert.Equal(t, "true", step.Result["is_healthy"])
}

func TestVerifyHealth_ReportsFailureOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewEngine(nil, httpadapter.New(time.Second), "target-api", "target-db", srv.URL)
	step := e.VerifyHealth(context.Background())

	assert.Equal(t, "success", step.Status)
	assert.Equal(t, "false", step.Result["is_healthy"])
}

func TestVerifyHealth_ReportsFailureOnUnreachableTarget(t *testing.T) {
	e := NewEngine(nil, httpadapter.New(50*time.Millisecond), "target-api", "target-db", "http://127.0.0.1:1")
	step := e.VerifyHealth(context.Background())

	assert.Equal(t, "failed", step.Status)
	assert.NotEmpty(t, step.Error)
}

func TestRestartContainer_RateLimitedBeforeTouchingContainers(t *testing.T) {
	// Containers is nil: if the governor's rate limit short-circuits
	// first, restartContainer never dereferences it.
	e := NewEngine(nil, httpadapter.New(time.Second), "target-api", "target-db", "http://unused")
	e.gov = newGovernor(0)

	step := e.RestartTargetAPI(context.Background())
	assert.Equal(t, "failed", step.Status)
	assert.Contains(t, step.Error, "rate limit")
}
