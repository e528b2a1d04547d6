package egress

import (
	"errors"
	"fmt"
)

// Application error codes.
const (
	EINVALID  = "invalid"
	ENOTFOUND = "not_found"
	EINTERNAL = "internal"

	// Outbound call taxonomy.
	EROBOTSBLOCKED = "robots_blocked"
	ERATELIMIT     = "rate_limit_exceeded"
	EQUOTA         = "quota_exceeded"
	ECIRCUITOPEN   = "circuit_open"
	ETRANSIENT     = "transient_http"
	ETIMEOUT       = "timeout"
	EPERMANENT     = "permanent_http"
	EUNAVAILABLE   = "unavailable"
)

// Error represents an application-specific error.
type Error struct {
	// Machine-readable error code.
	Code string

	// Human-readable error message.
	Message string

	// Underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrapf returns an Error with the given code that wraps err.
// The message is formatted and followed by the cause.
func Wrapf(err error, code string, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}

// IsRetryable reports whether err marks a backend that may succeed later,
// either by waiting or by trying the next candidate.
// Robots blocks and permanent HTTP failures are terminal.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case ERATELIMIT, EQUOTA, ECIRCUITOPEN, ETRANSIENT, ETIMEOUT:
		return true
	default:
		return false
	}
}
