package mariadb

import (
	"context"
	"fmt"
)

// Student is a row of the student information system.
type Student struct {
	StudentID      string
	Name           string
	ReferenceImage string
	Department     string
	Year           string
	Division       string
	Subjects       []string
}

// ClassFilter identifies a class in the student information system.
type ClassFilter struct {
	Department string
	Year       string
	Division   string
	Subject    string
}

// ClassStudents returns the students enrolled in the given subject of a
// department/year/division, ordered by student ID.
func (p *Pool) ClassStudents(ctx context.Context, f ClassFilter) ([]Student, error) {
	query := `
		SELECT s.student_id, s.name, COALESCE(s.reference_image, ''), s.department, s.year, s.division
		FROM students s
		JOIN student_subjects ss ON ss.student_id = s.student_id
		WHERE s.department = ? AND s.year = ? AND s.division = ? AND ss.subject = ?
		ORDER BY s.student_id
	`

	rows, err := p.db.QueryContext(ctx, query, f.Department, f.Year, f.Division, f.Subject)
	if err != nil {
		return nil, fmt.Errorf("query class students: %w", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.StudentID, &s.Name, &s.ReferenceImage, &s.Department, &s.Year, &s.Division); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		s.Subjects = []string{f.Subject}
		students = append(students, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return students, nil
}

// ListStudents returns all students with the subjects they are enrolled in.
func (p *Pool) ListStudents(ctx context.Context) ([]Student, error) {
	query := `
		SELECT s.student_id, s.name, COALESCE(s.reference_image, ''), s.department, s.year, s.division,
			COALESCE(ss.subject, '')
		FROM students s
		LEFT JOIN student_subjects ss ON ss.student_id = s.student_id
		ORDER BY s.student_id, ss.subject
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Student)
	var order []string

	for rows.Next() {
		var s Student
		var subject string
		if err := rows.Scan(&s.StudentID, &s.Name, &s.ReferenceImage, &s.Department, &s.Year, &s.Division, &subject); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		existing, ok := byID[s.StudentID]
		if !ok {
			order = append(order, s.StudentID)
			existing = &s
			byID[s.StudentID] = existing
		}
		if subject != "" {
			existing.Subjects = append(existing.Subjects, subject)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	students := make([]Student, 0, len(order))
	for _, id := range order {
		students = append(students, *byID[id])
	}

	return students, nil
}
