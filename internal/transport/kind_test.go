package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chaoslab/faultplane/internal/registry"
)

func TestNormalizeKind_AcceptsCanonicalForm(t *testing.T) {
	kind, ok := normalizeKind("db_pool")
	assert.True(t, ok)
	assert.Equal(t, registry.KindDBPool, kind)
}

func TestNormalizeKind_AcceptsPluralAlias(t *testing.T) {
	kind, ok := normalizeKind("long_transactions")
	assert.True(t, ok)
	assert.Equal(t, registry.KindLongTransaction, kind)

	kind, ok = normalizeKind("env_vars")
	assert.True(t, ok)
	assert.Equal(t, registry.KindEnvVar, kind)
}

func TestNormalizeKind_RejectsUnknownSegment(t *testing.T) {
	_, ok := normalizeKind("bogus_kind")
	assert.False(t, ok)
}
