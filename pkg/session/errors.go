package session

import "errors"

// Session errors.
var (
	// ErrNotConfigured is returned when session functionality is used
	// without a configured store.
	ErrNotConfigured = errors.New("session: not configured")

	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrExpired is returned when a session has expired.
	ErrExpired = errors.New("session: expired")

	// ErrInvalidToken is returned when a session token is malformed or its
	// cookie signature does not verify.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrTypeMismatch is returned by Value when a stored value has another type.
	ErrTypeMismatch = errors.New("session: type mismatch")
)
