package attendance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRoster struct {
	members []RosterMember
	err     error
	got     ClassContext
}

func (r *staticRoster) Roster(_ context.Context, class ClassContext) ([]RosterMember, error) {
	r.got = class
	return r.members, r.err
}

type memorySaver struct {
	mu       sync.Mutex
	sessions []*Session
	err      error
}

func (m *memorySaver) SaveSession(_ context.Context, s *Session) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func newTestService(m Matcher, roster RosterSource, saver SessionSaver) *Service {
	svc := NewService(m, roster, saver, ServiceConfig{
		Thresholds: DefaultThresholds(),
		Workers:    2,
		DraftTTL:   time.Minute,
	}, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 11, 9, 5, 0, 0, time.UTC) }
	return svc
}

func scenarioOneMatcher() *fakeMatcher {
	return newFakeMatcher().
		withFaces("class.jpg", 2).
		withScore("class.jpg", 1, "id1", 85).
		withScore("class.jpg", 1, "id2", 30).
		withScore("class.jpg", 2, "id1", 20).
		withScore("class.jpg", 2, "id2", 90)
}

func TestService_TakeCorrectCommit(t *testing.T) {
	saver := &memorySaver{}
	roster := &staticRoster{members: rosterAB()}
	svc := newTestService(scenarioOneMatcher(), roster, saver)
	ctx := context.Background()

	draft, err := svc.Take(ctx, validClass(), "teacher-7", photos("class.jpg"))
	require.NoError(t, err)
	assert.NotEmpty(t, draft.ID)
	assert.Equal(t, validClass(), roster.got)
	assert.Equal(t, Tally{Present: 2, Total: 2}, draft.Decisions.Tally())
	assert.Len(t, draft.FaceMatches, 2)

	dec, err := svc.Correct(draft.ID, "id2", StatusAbsent, "seen leaving early")
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, dec.Status)
	assert.InDelta(t, 90, dec.Confidence, 1e-9)

	session, err := svc.Commit(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", session.Date)
	assert.Equal(t, "09:05:00", session.Time)
	assert.Equal(t, "teacher-7", session.TakenBy)
	require.Len(t, saver.sessions, 1)
	assert.Equal(t, StatusAbsent, session.Records[1].Status)
	assert.True(t, session.Records[1].ManuallyCorrected)

	_, err = svc.Commit(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound, "a draft is committed once")
}

func TestService_TakeValidatesInput(t *testing.T) {
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, &memorySaver{})

	class := validClass()
	class.Subject = ""
	_, err := svc.Take(context.Background(), class, "", photos("class.jpg"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Take(context.Background(), validClass(), "", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_TakeRejectsDuplicateRoster(t *testing.T) {
	roster := append(rosterAB(), RosterMember{StudentID: "id1", DisplayName: "Alice again"})
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: roster}, &memorySaver{})

	_, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))

	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_RosterError(t *testing.T) {
	boom := errors.New("sis down")
	svc := newTestService(scenarioOneMatcher(), &staticRoster{err: boom}, &memorySaver{})

	_, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))

	assert.ErrorIs(t, err, boom)
}

func TestService_CommitSaveFailureKeepsDraft(t *testing.T) {
	saver := &memorySaver{err: errors.New("disk full")}
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, saver)

	draft, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), draft.ID)
	require.Error(t, err)

	_, err = svc.Draft(draft.ID)
	assert.NoError(t, err)
}

func TestService_CorrectUnknownDraftOrStudent(t *testing.T) {
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, &memorySaver{})

	_, err := svc.Correct("missing", "id1", StatusAbsent, "")
	assert.ErrorIs(t, err, ErrNotFound)

	draft, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))
	require.NoError(t, err)
	_, err = svc.Correct(draft.ID, "id9", StatusAbsent, "")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "id9", nf.StudentID)
}

func TestService_CommitWithoutStore(t *testing.T) {
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, nil)

	_, err := svc.Commit(context.Background(), "anything")

	assert.Error(t, err)
}

// blockingSaver holds SaveSession until release is closed.
type blockingSaver struct {
	memorySaver
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSaver) SaveSession(ctx context.Context, s *Session) error {
	close(b.entered)
	<-b.release
	return b.memorySaver.SaveSession(ctx, s)
}

func TestService_CorrectDuringCommitIsRejected(t *testing.T) {
	saver := &blockingSaver{entered: make(chan struct{}), release: make(chan struct{})}
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, saver)

	draft, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))
	require.NoError(t, err)

	type result struct {
		session *Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := svc.Commit(context.Background(), draft.ID)
		done <- result{s, err}
	}()
	<-saver.entered

	_, err = svc.Correct(draft.ID, "id2", StatusAbsent, "left early")
	assert.ErrorIs(t, err, ErrCommitInProgress)

	close(saver.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StatusPresent, res.session.Records[1].Status)
	assert.False(t, res.session.Records[1].ManuallyCorrected)
}

func TestService_CorrectAfterFailedCommit(t *testing.T) {
	saver := &memorySaver{err: errors.New("disk full")}
	svc := newTestService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, saver)

	draft, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))
	require.NoError(t, err)
	_, err = svc.Commit(context.Background(), draft.ID)
	require.Error(t, err)

	dec, err := svc.Correct(draft.ID, "id2", StatusAbsent, "")
	require.NoError(t, err, "a failed commit leaves the draft editable")
	assert.Equal(t, StatusAbsent, dec.Status)
}

func TestService_TakeReportsProgress(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(scenarioOneMatcher(), &staticRoster{members: rosterAB()}, nil, ServiceConfig{
		Thresholds: DefaultThresholds(),
		Workers:    2,
		DraftTTL:   time.Minute,
		Progress:   func() { calls.Add(1) },
	}, nil, nil)

	_, err := svc.Take(context.Background(), validClass(), "", photos("class.jpg"))

	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load(), "two faces times two students")
}
