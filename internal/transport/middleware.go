package transport

import (
	"net/http"

	"golang.org/x/time/rate"
)

// writeRateLimiter is a single process-wide token bucket guarding the
// write endpoints (attack create/stop, kill switch, remediation actions),
// grounded on the teacher's cmd/server/middleware fixedWindowLimiter —
// reimplemented over golang.org/x/time/rate, the limiter already in use
// by internal/remediation's per-action governor, rather than hand-rolling
// a second token-bucket type for the same concern.
func writeRateLimiter(ratePerSecond, burst int) func(http.Handler) http.Handler {
	if ratePerSecond <= 0 {
		ratePerSecond = 50
	}
	if burst <= 0 {
		burst = ratePerSecond
	}
	limiter := rate.NewLimiter(rate.Limit(ratePerSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"kind":    "rejected",
					"message": "write rate limit exceeded, retry shortly",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isWriteMethod reports whether method mutates state and should count
// against the write rate limiter.
func isWriteMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete
}

// onlyWrites wraps mw so it only runs for mutating HTTP methods, letting
// GET status/health/metrics traffic bypass the write-path limiter.
func onlyWrites(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWriteMethod(r.Method) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
