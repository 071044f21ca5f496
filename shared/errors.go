package shared

import (
	"github.com/pkg/errors"
)

// Error kinds. Every error leaving the acquisition layer matches exactly one
// of these with errors.Is.
var (
	ErrConnection   = errors.New("wmi connection error")
	ErrQuery        = errors.New("wmi query error")
	ErrDecode       = errors.New("decode failure")
	ErrRegistry     = errors.New("registry access error")
	ErrMissingField = errors.New("missing field")

	ErrNotInitialized     = errors.New("com runtime not initialized")
	ErrAlreadyInitialized = errors.New("com runtime already initialized")
	ErrClientsOpen        = errors.New("wmi clients still connected")
	ErrNotConnected       = errors.New("wmi client not connected")
	ErrUnsupported        = errors.New("unsupported platform")
)

// Error tags a native failure with its kind.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Tag wraps err as kind, prefixed with a formatted operation description.
func Tag(kind, err error, format string, args ...interface{}) error {
	return errors.Wrapf(&Error{Kind: kind, Err: err}, format, args...)
}

// MissingFieldError is returned when a record builder needs a field the row
// does not carry.
type MissingFieldError struct {
	Class string
	Field string
}

func (e *MissingFieldError) Error() string {
	if e.Class == "" {
		return "missing field " + e.Field
	}
	return "missing field " + e.Class + "." + e.Field
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }
