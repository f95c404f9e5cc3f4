package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance session storage.
type SessionRepository struct {
	pool *Pool
}

var _ database.SessionStore = (*SessionRepository)(nil)

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const (
	uniqueViolation   = pq.ErrorCode("23505")
	oneAmendmentIndex = "idx_attendance_sessions_one_amendment"
)

const sessionColumns = `
	id, to_char(session_date, 'YYYY-MM-DD'), to_char(session_time, 'HH24:MI:SS'),
	department, year, division, subject, time_slot, taken_by,
	supersedes, records, created_at`

// SaveSession inserts a session. Stored sessions are never updated.
func (r *SessionRepository) SaveSession(ctx context.Context, s *attendance.Session) error {
	records, err := json.Marshal(s.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	var supersedes sql.NullString
	if s.Supersedes != "" {
		supersedes = sql.NullString{String: s.Supersedes, Valid: true}
	}

	query := `
		INSERT INTO attendance_sessions (
			id, session_date, session_time, department, year, division,
			subject, time_slot, taken_by, supersedes, records, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID, s.Date, s.Time, s.Department, s.Year, s.Division,
		s.Subject, s.TimeSlot, s.TakenBy, supersedes, records, s.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == oneAmendmentIndex {
			return fmt.Errorf("%s: %w", s.Supersedes, database.ErrSessionSuperseded)
		}
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns the session with the given ID, or nil if not found.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*attendance.Session, error) {
	key, ok := sessionKey(id)
	if !ok {
		return nil, nil
	}
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions returns sessions matching the filter, oldest first.
func (r *SessionRepository) ListSessions(ctx context.Context, filter database.SessionFilter) ([]attendance.Session, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.DateFrom != "" {
		add("session_date >= $%d", filter.DateFrom)
	}
	if filter.DateTo != "" {
		add("session_date <= $%d", filter.DateTo)
	}
	if v := strings.TrimSpace(filter.Department); v != "" {
		add("LOWER(department) = LOWER($%d)", v)
	}
	if v := strings.TrimSpace(filter.Year); v != "" {
		add("LOWER(year) = LOWER($%d)", v)
	}
	if v := strings.TrimSpace(filter.Division); v != "" {
		add("LOWER(division) = LOWER($%d)", v)
	}
	if v := strings.TrimSpace(filter.Subject); v != "" {
		add("LOWER(subject) = LOWER($%d)", v)
	}

	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY session_date, session_time, created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]attendance.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if !filter.IncludeSuperseded {
		sessions = database.LatestOnly(sessions)
	}
	return sessions, nil
}

// DeleteSession removes a stored session. Sessions that superseded it keep
// their records but lose the back reference.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	key, ok := sessionKey(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, database.ErrSessionNotFound)
	}
	result, err := r.pool.Exec(ctx, "DELETE FROM attendance_sessions WHERE id = $1", key)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, database.ErrSessionNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*attendance.Session, error) {
	var (
		s          attendance.Session
		supersedes sql.NullString
		records    []byte
	)
	err := row.Scan(
		&s.ID, &s.Date, &s.Time,
		&s.Department, &s.Year, &s.Division, &s.Subject, &s.TimeSlot, &s.TakenBy,
		&supersedes, &records, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Supersedes = supersedes.String
	if err := json.Unmarshal(records, &s.Records); err != nil {
		return nil, fmt.Errorf("unmarshal records of %s: %w", s.ID, err)
	}
	if s.Records == nil {
		s.Records = []attendance.StudentDecision{}
	}
	return &s, nil
}

// sessionKey returns the canonical form of a session ID. IDs that are not
// UUIDs cannot match any row.
func sessionKey(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
