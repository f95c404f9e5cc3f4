package database

import (
	"context"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// SessionReader provides read-only access to stored attendance sessions
type SessionReader interface {
	// GetSession retrieves a session by ID, returns nil if not found
	GetSession(ctx context.Context, id string) (*attendance.Session, error)
	// ListSessions returns sessions matching the filter, oldest first
	ListSessions(ctx context.Context, filter SessionFilter) ([]attendance.Session, error)
}

// SessionWriter stores and removes attendance sessions
type SessionWriter interface {
	// SaveSession stores a new session. Stored sessions are never updated.
	SaveSession(ctx context.Context, s *attendance.Session) error
	// DeleteSession removes a session, returns ErrSessionNotFound if absent
	DeleteSession(ctx context.Context, id string) error
}

// SessionStore combines SessionReader and SessionWriter
type SessionStore interface {
	SessionReader
	SessionWriter
}
