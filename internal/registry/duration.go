package registry

import "time"

// Durationed is implemented by a fault module's validated params when the
// fault has an intrinsic bound (hold_seconds, duration_seconds) after
// which the registry's rollback timer should fire automatically.
type Durationed interface {
	Duration() time.Duration
}

func durationOf(params any) time.Duration {
	if d, ok := params.(Durationed); ok {
		return d.Duration()
	}
	return 0
}
