// Package roster selects the students enrolled in a class from a roster
// file or from the student information system.
package roster

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// Student is one enrolled student with the classes they attend.
type Student struct {
	StudentID      string   `yaml:"student_id"`
	Name           string   `yaml:"name"`
	ReferenceImage string   `yaml:"reference_image"`
	Department     string   `yaml:"department"`
	Year           string   `yaml:"year"`
	Division       string   `yaml:"division"`
	Subjects       []string `yaml:"subjects"`
}

// Member converts the student to a roster member. A missing reference image
// defaults to "<student_id>.jpg".
func (s Student) Member() attendance.RosterMember {
	ref := s.ReferenceImage
	if ref == "" {
		ref = s.StudentID + ".jpg"
	}
	return attendance.RosterMember{
		StudentID:      s.StudentID,
		DisplayName:    s.Name,
		ReferenceImage: ref,
	}
}

// Enrolled reports whether the student belongs to the class: same
// department, year and division, and the subject is one of theirs.
func (s Student) Enrolled(class attendance.ClassContext) bool {
	if !sameKey(s.Department, class.Department) ||
		!sameKey(s.Year, class.Year) ||
		!sameKey(s.Division, class.Division) {
		return false
	}
	for _, subject := range s.Subjects {
		if sameKey(subject, class.Subject) {
			return true
		}
	}
	return false
}

// Select returns the roster of a class in the order students are listed.
func Select(students []Student, class attendance.ClassContext) []attendance.RosterMember {
	members := []attendance.RosterMember{}
	for _, s := range students {
		if s.Enrolled(class) {
			members = append(members, s.Member())
		}
	}
	return members
}

type fileFormat struct {
	Students []Student `yaml:"students"`
}

// File is a roster source backed by a YAML file.
type File struct {
	students []Student
}

// Parse decodes a YAML roster.
func Parse(data []byte) (*File, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	members := make([]attendance.RosterMember, 0, len(f.Students))
	for _, s := range f.Students {
		members = append(members, s.Member())
	}
	if err := attendance.CheckRoster(members); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	return &File{students: f.Students}, nil
}

// LoadFile reads a YAML roster from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file: %w", err)
	}
	return Parse(data)
}

// Roster implements attendance.RosterSource.
func (f *File) Roster(_ context.Context, class attendance.ClassContext) ([]attendance.RosterMember, error) {
	return Select(f.students, class), nil
}

// Students returns all students in the file.
func (f *File) Students() []Student {
	out := make([]Student, len(f.students))
	copy(out, f.students)
	return out
}

// FindByName returns students whose name matches the query.
func (f *File) FindByName(_ context.Context, query string) ([]Student, error) {
	return filterByName(f.students, query), nil
}

// filterByName keeps students whose normalized name contains the
// normalized query.
func filterByName(students []Student, query string) []Student {
	q := NormalizeName(query)
	if q == "" {
		return nil
	}
	var out []Student
	for _, s := range students {
		if strings.Contains(NormalizeName(s.Name), q) {
			out = append(out, s)
		}
	}
	return out
}
