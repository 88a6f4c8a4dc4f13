package session

import (
	"errors"
	"fmt"
)

// Error taxonomy for the coordination core. Handlers map these onto HTTP
// statuses; the room actor maps them onto error events sent to the
// originating connection only.
var (
	ErrNotFound = errors.New("not found")
	ErrCapacity = errors.New("room is full")
	ErrConflict = errors.New("conflict")
	ErrInternal = errors.New("internal error")
)

// ValidationError marks a malformed inbound action. It is rejected locally
// and never mutates state or broadcasts.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ErrorCode classifies an error for the wire.
func ErrorCode(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
