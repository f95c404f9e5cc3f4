package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RosterSource loads the students enrolled in a class.
type RosterSource interface {
	Roster(ctx context.Context, class ClassContext) ([]RosterMember, error)
}

// SessionSaver persists built sessions.
type SessionSaver interface {
	SaveSession(ctx context.Context, s *Session) error
}

// SessionObserver is implemented by observers that also track drafts and
// committed sessions.
type SessionObserver interface {
	ObserveDraft(t Tally)
	ObserveCommit(t Tally)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Thresholds Thresholds
	Workers    int
	DraftTTL   time.Duration
	// Progress, if set, is called after every face comparison.
	Progress func()
}

// Service runs the whole pipeline for one request: roster, collection,
// aggregation, draft corrections and commit.
type Service struct {
	matcher  Matcher
	rosters  RosterSource
	store    SessionSaver
	cfg      ServiceConfig
	drafts   *DraftStore
	log      *zap.Logger
	observer Observer
	now      func() time.Time

	commitMu sync.Mutex
}

// NewService creates a Service. store may be nil, in which case Commit fails.
func NewService(m Matcher, rosters RosterSource, store SessionSaver, cfg ServiceConfig, log *zap.Logger, obs Observer) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Service{
		matcher:  m,
		rosters:  rosters,
		store:    store,
		cfg:      cfg,
		drafts:   NewDraftStore(cfg.DraftTTL),
		log:      log,
		observer: obs,
		now:      time.Now,
	}
}

// Thresholds returns the thresholds applied to new drafts.
func (s *Service) Thresholds() Thresholds {
	return s.cfg.Thresholds
}

// Take processes photos for a class and returns a new draft.
func (s *Service) Take(ctx context.Context, class ClassContext, takenBy string, photos []Photo) (*Draft, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, &ValidationError{Field: "photos", Message: "must contain at least one photo"}
	}

	roster, err := s.rosters.Roster(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}
	if err := CheckRoster(roster); err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		s.log.Warn("no students enrolled in class", zap.String("subject", class.Subject))
	}

	th := s.cfg.Thresholds
	opts := []CollectorOption{
		WithWorkers(s.cfg.Workers),
		WithLogger(s.log),
		WithObserver(s.observer),
	}
	if s.cfg.Progress != nil {
		opts = append(opts, WithProgress(s.cfg.Progress))
	}
	collector := NewCollector(s.matcher, th.FaceMatch, opts...)
	attempts, report := collector.Collect(ctx, photos, roster)

	draft := &Draft{
		Class:       class,
		TakenBy:     takenBy,
		Thresholds:  th,
		Decisions:   Aggregate(attempts, roster, th),
		FaceMatches: ResolveFaces(attempts),
		Report:      report,
		CreatedAt:   s.now().UTC(),
	}
	s.drafts.Put(draft)

	t := draft.Decisions.Tally()
	if o, ok := s.observer.(SessionObserver); ok {
		o.ObserveDraft(t)
	}
	s.log.Info("attendance draft created",
		zap.String("draft_id", draft.ID),
		zap.String("subject", class.Subject),
		zap.Int("roster", len(roster)),
		zap.Int("present", t.Present),
		zap.Int("absent", t.Absent),
	)
	return draft, nil
}

// Draft returns an uncommitted draft.
func (s *Service) Draft(id string) (*Draft, error) {
	d, ok := s.drafts.Get(id)
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return d, nil
}

// Correct applies a manual correction to a draft. It fails with
// ErrCommitInProgress while the draft is being committed.
func (s *Service) Correct(draftID, studentID string, status Status, reason string) (StudentDecision, error) {
	d, err := s.Draft(draftID)
	if err != nil {
		return StudentDecision{}, err
	}
	if err := d.Decisions.Correct(studentID, status, reason); err != nil {
		return StudentDecision{}, err
	}
	dec, _ := d.Decisions.Get(studentID)
	s.log.Info("attendance corrected",
		zap.String("draft_id", draftID),
		zap.String("student_id", studentID),
		zap.String("status", string(status)),
	)
	return dec, nil
}

// Commit builds the session from a draft and saves it. A draft can be
// committed once.
func (s *Service) Commit(ctx context.Context, draftID string) (*Session, error) {
	if s.store == nil {
		return nil, errors.New("session storage is not configured")
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	d, err := s.Draft(draftID)
	if err != nil {
		return nil, err
	}

	// Corrections arriving from here on would not reach the saved session.
	d.Decisions.freeze()
	session, err := BuildAt(d.Decisions, s.now(), d.Class)
	if err != nil {
		d.Decisions.thaw()
		return nil, err
	}
	session.TakenBy = d.TakenBy

	if err := s.store.SaveSession(ctx, session); err != nil {
		d.Decisions.thaw()
		return nil, fmt.Errorf("saving session: %w", err)
	}
	s.drafts.Delete(draftID)
	if o, ok := s.observer.(SessionObserver); ok {
		o.ObserveCommit(session.Tally())
	}

	s.log.Info("attendance session saved",
		zap.String("session_id", session.ID),
		zap.String("draft_id", draftID),
	)
	return session, nil
}

// CheckRoster rejects rosters with empty or duplicate student IDs.
func CheckRoster(roster []RosterMember) error {
	seen := make(map[string]struct{}, len(roster))
	for _, m := range roster {
		if m.StudentID == "" {
			return &ValidationError{Field: "student_id"}
		}
		if _, ok := seen[m.StudentID]; ok {
			return &ValidationError{Field: "student_id", Message: "is duplicated: " + m.StudentID}
		}
		seen[m.StudentID] = struct{}{}
	}
	return nil
}
