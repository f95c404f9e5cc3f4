package attendance

import (
	"strings"
	"sync"
)

// Decisions is the working decision set of one attendance-processing request.
// It lives until the session is built; corrections after that are expressed
// as a new superseding session.
//
// Concurrent corrections are serialized and the last write wins per student.
// While frozen, corrections fail with ErrCommitInProgress.
type Decisions struct {
	mu     sync.RWMutex
	list   []StudentDecision
	index  map[string]int
	frozen bool
}

func newDecisions(list []StudentDecision) *Decisions {
	index := make(map[string]int, len(list))
	for i, d := range list {
		index[d.StudentID] = i
	}
	return &Decisions{list: list, index: index}
}

// NewDecisions wraps previously built decisions (for example the records of
// a stored session) into a working set. The slice is copied.
func NewDecisions(records []StudentDecision) *Decisions {
	list := make([]StudentDecision, len(records))
	for i, r := range records {
		list[i] = r.clone()
	}
	return newDecisions(list)
}

// Len returns the number of decisions.
func (d *Decisions) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.list)
}

// Get returns a copy of the decision for a student.
func (d *Decisions) Get(studentID string) (StudentDecision, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[studentID]
	if !ok {
		return StudentDecision{}, false
	}
	return d.list[i].clone(), true
}

// List returns a copy of all decisions in roster order.
func (d *Decisions) List() []StudentDecision {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]StudentDecision, len(d.list))
	for i, dec := range d.list {
		out[i] = dec.clone()
	}
	return out
}

// Correct overrides the verdict for one student. Confidence and provenance
// are left untouched. An empty reason keeps the previous reason, so the audit
// trail is never cleared.
func (d *Decisions) Correct(studentID string, status Status, reason string) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Message: "must be Present or Absent"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frozen {
		return ErrCommitInProgress
	}
	i, ok := d.index[studentID]
	if !ok {
		return &NotFoundError{StudentID: studentID}
	}

	dec := &d.list[i]
	dec.Status = status
	dec.ManuallyCorrected = true
	if reason = strings.TrimSpace(reason); reason != "" {
		dec.CorrectionReason = &reason
	}
	return nil
}

// freeze stops further corrections. Once it returns, every accepted
// correction is visible to List.
func (d *Decisions) freeze() {
	d.mu.Lock()
	d.frozen = true
	d.mu.Unlock()
}

func (d *Decisions) thaw() {
	d.mu.Lock()
	d.frozen = false
	d.mu.Unlock()
}

// Correction is one manual override request.
type Correction struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    Status `json:"status" validate:"required,oneof=Present Absent"`
	Reason    string `json:"reason"`
}

// ApplyAll applies corrections in order and stops at the first failure.
// Corrections applied before the failure remain applied.
func (d *Decisions) ApplyAll(corrections []Correction) error {
	for _, c := range corrections {
		if err := d.Correct(c.StudentID, c.Status, c.Reason); err != nil {
			return err
		}
	}
	return nil
}

// Tally holds counts derived from the decision set.
type Tally struct {
	Present   int `json:"present"`
	Absent    int `json:"absent"`
	Corrected int `json:"corrected"`
	Total     int `json:"total"`
}

// Tally derives counts from the current statuses.
func (d *Decisions) Tally() Tally {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return tally(d.list)
}

func tally(list []StudentDecision) Tally {
	t := Tally{Total: len(list)}
	for _, dec := range list {
		if dec.Status == StatusPresent {
			t.Present++
		} else {
			t.Absent++
		}
		if dec.ManuallyCorrected {
			t.Corrected++
		}
	}
	return t
}
