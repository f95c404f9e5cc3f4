package attendance

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Date and time layouts of a session.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Session is one completed attendance-taking event. Once saved it is never
// mutated; amendments create a new session whose Supersedes points back.
type Session struct {
	ID         string            `json:"id"`
	Date       string            `json:"date"`
	Time       string            `json:"time"`
	Department string            `json:"department"`
	Year       string            `json:"year"`
	Division   string            `json:"division"`
	Subject    string            `json:"subject"`
	TimeSlot   string            `json:"time_slot"`
	TakenBy    string            `json:"taken_by,omitempty"`
	Supersedes string            `json:"supersedes,omitempty"`
	Records    []StudentDecision `json:"records"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Class returns the class context of the session.
func (s *Session) Class() ClassContext {
	return ClassContext{
		Department: s.Department,
		Year:       s.Year,
		Division:   s.Division,
		Subject:    s.Subject,
		TimeSlot:   s.TimeSlot,
	}
}

// Tally derives counts from the session records.
func (s *Session) Tally() Tally {
	return tally(s.Records)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate trims the class fields and checks that none is missing.
func (c *ClassContext) Validate() error {
	c.Department = strings.TrimSpace(c.Department)
	c.Year = strings.TrimSpace(c.Year)
	c.Division = strings.TrimSpace(c.Division)
	c.Subject = strings.TrimSpace(c.Subject)
	c.TimeSlot = strings.TrimSpace(c.TimeSlot)
	return ValidateStruct(c)
}

// ValidateStruct runs struct validation and converts the first failure into
// a ValidationError naming the field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Tag() == "required" {
			return &ValidationError{Field: fe.Field()}
		}
		return &ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"}
	}
	return &ValidationError{Field: "input", Message: err.Error()}
}

// Build snapshots the decision set into a new session. It fails with a
// ValidationError when a class field, the date or the time is missing.
// The returned session does not share memory with the decision set.
func Build(decisions *Decisions, date, clock string, class ClassContext) (*Session, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(date) == "" {
		return nil, &ValidationError{Field: "date"}
	}
	if strings.TrimSpace(clock) == "" {
		return nil, &ValidationError{Field: "time"}
	}
	if decisions == nil {
		return nil, &ValidationError{Field: "records"}
	}

	return &Session{
		ID:         uuid.NewString(),
		Date:       date,
		Time:       clock,
		Department: class.Department,
		Year:       class.Year,
		Division:   class.Division,
		Subject:    class.Subject,
		TimeSlot:   class.TimeSlot,
		Records:    decisions.List(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// BuildAt is Build with date and time taken from t.
func BuildAt(decisions *Decisions, t time.Time, class ClassContext) (*Session, error) {
	return Build(decisions, t.Format(DateLayout), t.Format(TimeLayout), class)
}

// Amend derives a superseding session from a stored one with corrections
// applied. The stored session is not modified. The new session keeps the
// class date and time of the stored one.
func Amend(stored *Session, corrections []Correction, at time.Time) (*Session, error) {
	if len(corrections) == 0 {
		return nil, &ValidationError{Field: "corrections"}
	}
	for i := range corrections {
		if err := ValidateStruct(&corrections[i]); err != nil {
			return nil, err
		}
	}

	working := NewDecisions(stored.Records)
	if err := working.ApplyAll(corrections); err != nil {
		return nil, err
	}

	// The class still happened when it happened; only CreatedAt moves.
	next, err := Build(working, stored.Date, stored.Time, stored.Class())
	if err != nil {
		return nil, err
	}
	next.CreatedAt = at.UTC()
	next.TakenBy = stored.TakenBy
	next.Supersedes = stored.ID
	return next, nil
}
