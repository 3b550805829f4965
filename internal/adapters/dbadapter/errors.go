package dbadapter

import "errors"

var (
	// ErrNotConnected means Connect was never called or failed.
	ErrNotConnected = errors.New("dbadapter: not connected")
	// ErrConnectionClosed means the pool has already been closed.
	ErrConnectionClosed = errors.New("dbadapter: connection pool is closed")
	// ErrConnectionFailed wraps a failure to reach the target database.
	ErrConnectionFailed = errors.New("dbadapter: connection failed")
	// ErrHealthCheckFailed means the SELECT 1 probe didn't return the expected row.
	ErrHealthCheckFailed = errors.New("dbadapter: health check failed")
)
