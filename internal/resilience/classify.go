package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// NetworkErrorChecker treats connection-refused/reset/unreachable and
// timeout errors as retryable — the shape a restarting container or a
// database mid-failover produces — and everything else as not.
type NetworkErrorChecker struct{}

// IsRetryable implements ErrorChecker.
func (NetworkErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ENETUNREACH),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{"timeout", "deadline exceeded", "timed out", "connection refused", "connection reset"} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}

	type temporary interface{ Temporary() bool }
	if te, ok := err.(temporary); ok {
		return te.Temporary()
	}

	return false
}

// NeverRetry never retries — used for fault operations where a failed
// attempt must surface immediately rather than be silently repeated
// against the operator's target.
type NeverRetry struct{}

// IsRetryable implements ErrorChecker.
func (NeverRetry) IsRetryable(error) bool { return false }
