package transport

import "github.com/chaoslab/faultplane/internal/registry"

// kindAliases maps the plural path segments used in a few of spec.md's
// own example calls (e.g. "long_transactions") onto the canonical
// registry.Kind values, so both forms route the same place.
var kindAliases = map[string]registry.Kind{
	string(registry.KindDBPool):          registry.KindDBPool,
	string(registry.KindLongTransaction): registry.KindLongTransaction,
	string(registry.KindEnvVar):          registry.KindEnvVar,
	string(registry.KindAPICrash):        registry.KindAPICrash,
	string(registry.KindRateLimit):       registry.KindRateLimit,
	string(registry.KindMigration):       registry.KindMigration,

	"db_pools":          registry.KindDBPool,
	"long_transactions":  registry.KindLongTransaction,
	"env_vars":           registry.KindEnvVar,
	"api_crashes":        registry.KindAPICrash,
	"rate_limits":        registry.KindRateLimit,
	"migrations":         registry.KindMigration,
}

// normalizeKind resolves a URL path segment to a registry.Kind, accepting
// both the canonical singular form and the plural aliases.
func normalizeKind(segment string) (registry.Kind, bool) {
	kind, ok := kindAliases[segment]
	return kind, ok
}
