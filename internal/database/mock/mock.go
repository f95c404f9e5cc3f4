// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// MockSessionStore is an in-memory implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]attendance.Session

	// Error injection
	SaveError   error
	GetError    error
	ListError   error
	DeleteError error

	// Call tracking
	SaveCalls   []string
	DeleteCalls []string
}

var _ database.SessionStore = (*MockSessionStore)(nil)

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]attendance.Session),
	}
}

// AddSession adds a session to the mock store without recording a call
func (m *MockSessionStore) AddSession(s attendance.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
}

// SaveSession stores a session, rejecting duplicate IDs like a primary key would
func (m *MockSessionStore) SaveSession(ctx context.Context, s *attendance.Session) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = append(m.SaveCalls, s.ID)
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	if s.Supersedes != "" {
		for _, other := range m.sessions {
			if other.Supersedes == s.Supersedes {
				return fmt.Errorf("%s: %w", s.Supersedes, database.ErrSessionSuperseded)
			}
		}
	}
	m.sessions[s.ID] = copySession(*s)
	return nil
}

// GetSession retrieves a session by ID, returns nil if not found
func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*attendance.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	out := copySession(s)
	return &out, nil
}

// ListSessions returns sessions matching the filter, oldest first
func (m *MockSessionStore) ListSessions(ctx context.Context, filter database.SessionFilter) ([]attendance.Session, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]attendance.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if filter.Matches(&s) {
			results = append(results, copySession(s))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if !filter.IncludeSuperseded {
		results = database.LatestOnly(results)
	}
	return results, nil
}

// DeleteSession removes a session
func (m *MockSessionStore) DeleteSession(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, id)
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%s: %w", id, database.ErrSessionNotFound)
	}
	delete(m.sessions, id)
	// Mirror ON DELETE SET NULL.
	for key, s := range m.sessions {
		if s.Supersedes == id {
			s.Supersedes = ""
			m.sessions[key] = s
		}
	}
	return nil
}

// Count returns the number of stored sessions
func (m *MockSessionStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func copySession(s attendance.Session) attendance.Session {
	s.Records = append([]attendance.StudentDecision{}, s.Records...)
	return s
}
