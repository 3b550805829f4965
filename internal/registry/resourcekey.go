package registry

// ResourceKeyed is implemented by a fault module's validated params when
// the fault claims a target primitive (container name, database+table)
// that another attack must not concurrently destroy. Modules with no
// meaningful shared primitive (none here) simply don't implement it.
type ResourceKeyed interface {
	ResourceKey() string
}

func resourceKeyOf(params any) (string, bool) {
	rk, ok := params.(ResourceKeyed)
	if !ok {
		return "", false
	}
	key := rk.ResourceKey()
	return key, key != ""
}
