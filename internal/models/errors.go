package models

import "errors"

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrValidationFailed   = errors.New("validation failed")
	// ErrUnavailable marks a failed durable write or read; the caller may retry.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDuplicate is returned by stores when a unique index rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConcurrentUpdate is returned when a record changed between read and
	// conditional write.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// ErrorCode returns the wire code used for err in websocket and HTTP replies.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPreconditionFailed):
		return "PRECONDITION_FAILED"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrValidationFailed):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConcurrentUpdate):
		return "CONFLICT"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsRetryable reports whether err came from a store failure rather than a
// rejected request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
