// Package state holds per-user ordering sessions, their timers and the locks
// that serialize work on a single user.
package state

import (
	"context"
	"errors"
)

// ErrSessionNotFound indicates that no session exists for the user.
var ErrSessionNotFound = errors.New("session not found")

// Store defines the persistence contract for sessions. Implementations must
// hand out copies so callers can mutate freely before saving.
type Store interface {
	// Get returns the session for the specified user.
	Get(ctx context.Context, userID int64) (*Session, error)
	// Save stores the session under its UserID.
	Save(ctx context.Context, session *Session) error
	// Delete removes the session for the specified user.
	Delete(ctx context.Context, userID int64) error
	// List returns every live session.
	List(ctx context.Context) ([]*Session, error)
}
