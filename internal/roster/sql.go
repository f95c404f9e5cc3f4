package roster

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
)

// StudentQuerier is the part of the student information system used for
// rosters. *mariadb.Pool implements it.
type StudentQuerier interface {
	ClassStudents(ctx context.Context, f mariadb.ClassFilter) ([]mariadb.Student, error)
	ListStudents(ctx context.Context) ([]mariadb.Student, error)
}

// SQLSource loads rosters from the student information system.
type SQLSource struct {
	q StudentQuerier
}

// NewSQLSource creates a roster source over the student information system.
func NewSQLSource(q StudentQuerier) *SQLSource {
	return &SQLSource{q: q}
}

// Roster implements attendance.RosterSource.
func (s *SQLSource) Roster(ctx context.Context, class attendance.ClassContext) ([]attendance.RosterMember, error) {
	rows, err := s.q.ClassStudents(ctx, mariadb.ClassFilter{
		Department: class.Department,
		Year:       class.Year,
		Division:   class.Division,
		Subject:    class.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("loading class students: %w", err)
	}
	members := make([]attendance.RosterMember, 0, len(rows))
	for _, r := range rows {
		members = append(members, fromRow(r).Member())
	}
	return members, nil
}

// FindByName returns students whose name matches the query.
func (s *SQLSource) FindByName(ctx context.Context, query string) ([]Student, error) {
	rows, err := s.q.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	students := make([]Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, fromRow(r))
	}
	return filterByName(students, query), nil
}

func fromRow(r mariadb.Student) Student {
	return Student{
		StudentID:      r.StudentID,
		Name:           r.Name,
		ReferenceImage: r.ReferenceImage,
		Department:     r.Department,
		Year:           r.Year,
		Division:       r.Division,
		Subjects:       r.Subjects,
	}
}
