package database

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// ErrSessionNotFound is returned when a stored session does not exist.
var ErrSessionNotFound = fmt.Errorf("session %w", attendance.ErrNotFound)

// SessionFilter selects stored sessions. Empty fields match everything.
// Dates are inclusive and use attendance.DateLayout.
type SessionFilter struct {
	DateFrom   string
	DateTo     string
	Department string
	Year       string
	Division   string
	Subject    string
	// IncludeSuperseded keeps sessions that were replaced by an amendment.
	IncludeSuperseded bool
}

// Matches reports whether a session passes the filter, ignoring supersession.
func (f SessionFilter) Matches(s *attendance.Session) bool {
	if f.DateFrom != "" && s.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && s.Date > f.DateTo {
		return false
	}
	return matchField(f.Department, s.Department) &&
		matchField(f.Year, s.Year) &&
		matchField(f.Division, s.Division) &&
		matchField(f.Subject, s.Subject)
}

func matchField(want, got string) bool {
	return want == "" || strings.EqualFold(strings.TrimSpace(want), got)
}
