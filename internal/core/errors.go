package core

import "errors"

var (
	ErrNotFound         = errors.New("core: not found")
	ErrPermissionDenied = errors.New("core: permission denied")
	ErrInvalidInput     = errors.New("core: invalid input")
	ErrConflict         = errors.New("core: conflict")
)

// invalid wraps ErrInvalidInput with a message safe to show to clients.
func invalid(msg string) error {
	return &InputError{Message: msg}
}

// InputError is an ErrInvalidInput carrying a client-facing message.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return "core: invalid input: " + e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidInput }
