package cache

import "errors"

var (
	// ErrNotFound means the key is absent or past its TTL.
	ErrNotFound = errors.New("cache: entry not found")
	ErrClosed   = errors.New("cache: closed")

	// ErrMarshal and ErrUnmarshal wrap codec failures of byte-oriented
	// backends.
	ErrMarshal   = errors.New("cache: marshal value")
	ErrUnmarshal = errors.New("cache: unmarshal value")
)
