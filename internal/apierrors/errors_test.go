package apierrors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Rejected, http.StatusConflict},
		{InvalidParams, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{AdapterError, http.StatusBadGateway},
		{Timeout, http.StatusGatewayTimeout},
		{Cancelled, http.StatusOK},
		{RollbackFailed, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.kind.StatusCode(), "kind %s", c.kind)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	err := InvalidParamsf("connections must be >= %d", 1)
	assert.Equal(t, InvalidParams, err.Kind())
	assert.Contains(t, err.Error(), "connections must be >= 1")

	err = NotFoundf("attack %s", "abc-123")
	assert.Equal(t, NotFound, err.Kind())

	err = RollbackFailedf("terminate backend: %s", "timeout")
	assert.Equal(t, RollbackFailed, err.Kind())
}

func TestWithDetail(t *testing.T) {
	err := Rejectedf("kill switch engaged").WithDetail("retry after 30s")
	assert.Equal(t, "retry after 30s", err.Detail)
	assert.Contains(t, err.Error(), "retry after 30s")
}

func TestWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, AdapterErrorf("connection refused"))

	require.Equal(t, http.StatusBadGateway, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(AdapterError), body["kind"])
	assert.Equal(t, "connection refused", body["message"])
}
