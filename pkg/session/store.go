package session

import (
	"context"
	"time"
)

// Store persists sessions.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by its token.
	// Returns ErrNotFound if the session doesn't exist and ErrExpired
	// if it has expired.
	Get(ctx context.Context, token string) (*Session, error)

	// Update saves changes to an existing session.
	Update(ctx context.Context, s *Session) error

	// Delete removes a session by its ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByPrincipal removes all sessions of a principal.
	DeleteByPrincipal(ctx context.Context, principalID string) error

	// Touch updates LastActiveAt without loading the full session.
	Touch(ctx context.Context, id string, lastActiveAt time.Time) error

	// DeleteExpired removes sessions that expired before the given time
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
