// Package apierrors defines the error-kind taxonomy shared by chaosd and
// actiond: every adapter, fault module, and engine call returns one of
// these kinds so the HTTP layer can map it to a status code without
// inspecting error strings.
package apierrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is one of the seven outcomes an attack or remediation operation can
// produce.
type Kind string

const (
	// Rejected means policy or a concurrency cap denied the request.
	Rejected Kind = "rejected"
	// InvalidParams means the request failed bounds or shape validation.
	InvalidParams Kind = "invalid_params"
	// NotFound means the attack or run id is unknown.
	NotFound Kind = "not_found"
	// AdapterError means the container/db/file/HTTP call itself failed.
	AdapterError Kind = "adapter_error"
	// Timeout means an adapter call exceeded its bound.
	Timeout Kind = "timeout"
	// Cancelled means a normal cooperative stop — not an error to the caller.
	Cancelled Kind = "cancelled"
	// RollbackFailed means a terminal state with stranded resources recorded.
	RollbackFailed Kind = "rollback_failed"
)

// StatusCode returns the HTTP status a Kind maps to.
func (k Kind) StatusCode() int {
	switch k {
	case Rejected:
		return http.StatusConflict
	case InvalidParams:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AdapterError:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	case Cancelled:
		return http.StatusOK
	case RollbackFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error carried by the engine, adapters, and fault
// modules. It implements the error interface so it can flow through normal
// Go error handling (errors.As) up to the transport layer.
type Error struct {
	KindValue Kind   `json:"kind"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{KindValue: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{KindValue: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches adapter-captured detail (stderr, status body) and
// returns the same Error for chaining.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Kind returns the error's Kind.
func (e *Error) Kind() Kind { return e.KindValue }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.KindValue, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.KindValue, e.Message)
}

// StatusCode returns the HTTP status this error maps to.
func (e *Error) StatusCode() int { return e.KindValue.StatusCode() }

// Write serializes the error as JSON with the correct status code.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	json.NewEncoder(w).Encode(err)
}

// Rejectedf is a convenience constructor for the Rejected kind.
func Rejectedf(format string, args ...interface{}) *Error {
	return Newf(Rejected, format, args...)
}

// InvalidParamsf is a convenience constructor for the InvalidParams kind.
func InvalidParamsf(format string, args ...interface{}) *Error {
	return Newf(InvalidParams, format, args...)
}

// NotFoundf is a convenience constructor for the NotFound kind.
func NotFoundf(format string, args ...interface{}) *Error {
	return Newf(NotFound, format, args...)
}

// AdapterErrorf is a convenience constructor for the AdapterError kind.
func AdapterErrorf(format string, args ...interface{}) *Error {
	return Newf(AdapterError, format, args...)
}

// Timeoutf is a convenience constructor for the Timeout kind.
func Timeoutf(format string, args ...interface{}) *Error {
	return Newf(Timeout, format, args...)
}

// Cancelledf is a convenience constructor for the Cancelled kind.
func Cancelledf(format string, args ...interface{}) *Error {
	return Newf(Cancelled, format, args...)
}

// RollbackFailedf is a convenience constructor for the RollbackFailed kind.
func RollbackFailedf(format string, args ...interface{}) *Error {
	return Newf(RollbackFailed, format, args...)
}
