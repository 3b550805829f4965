package logger

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_MapsPanicToAdapterErrorStatus(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/attacks", nil)

	Recover(slog.Default())(panicking).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadGateway, rr.Code, "AdapterError maps to 502, not a hand-rolled 500")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "adapter_error", body["kind"])
}

func TestRecover_PassesThroughWithoutPanic(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/attacks", nil)

	Recover(slog.Default())(ok).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
