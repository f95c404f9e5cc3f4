package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// ErrSessionSuperseded is returned when amending a session that already has
// an amendment. Amend the latest session instead.
var ErrSessionSuperseded = errors.New("session has already been amended")

// AmendSession stores a new session that supersedes the stored session id
// with corrections applied. The stored session itself is left untouched.
func AmendSession(ctx context.Context, store SessionStore, id string, corrections []attendance.Correction, at time.Time) (*attendance.Session, error) {
	stored, err := store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}

	siblings, err := store.ListSessions(ctx, SessionFilter{
		DateFrom:          stored.Date,
		DateTo:            stored.Date,
		Department:        stored.Department,
		Year:              stored.Year,
		Division:          stored.Division,
		Subject:           stored.Subject,
		IncludeSuperseded: true,
	})
	if err != nil {
		return nil, err
	}
	for i := range siblings {
		if siblings[i].Supersedes == stored.ID {
			return nil, fmt.Errorf("%s is superseded by %s: %w", id, siblings[i].ID, ErrSessionSuperseded)
		}
	}

	next, err := attendance.Amend(stored, corrections, at)
	if err != nil {
		return nil, err
	}
	if err := store.SaveSession(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// LatestOnly drops sessions superseded by another session in the list.
func LatestOnly(sessions []attendance.Session) []attendance.Session {
	superseded := make(map[string]bool)
	for i := range sessions {
		if s := sessions[i].Supersedes; s != "" {
			superseded[s] = true
		}
	}
	out := make([]attendance.Session, 0, len(sessions))
	for i := range sessions {
		if !superseded[sessions[i].ID] {
			out = append(out, sessions[i])
		}
	}
	return out
}
