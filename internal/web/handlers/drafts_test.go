package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database/mock"
)

// scriptedMatcher finds two faces in every photo. Face 1 is Alice, face 2 is Bob.
type scriptedMatcher struct{}

func (scriptedMatcher) DetectFaces(_ context.Context, p attendance.Photo) ([]attendance.DetectedFace, error) {
	if string(p.Data) == "corrupt" {
		return nil, fmt.Errorf("cannot decode %s", p.Name)
	}
	return []attendance.DetectedFace{{Index: 1}, {Index: 2}}, nil
}

func (scriptedMatcher) Compare(_ context.Context, face attendance.DetectedFace, m attendance.RosterMember) (attendance.Comparison, error) {
	scores := map[string]float64{"1/id1": 85, "1/id2": 30, "2/id1": 20, "2/id2": 90}
	return attendance.Comparison{Similarity: scores[fmt.Sprintf("%d/%s", face.Index, m.StudentID)]}, nil
}

type classRoster struct{}

func (classRoster) Roster(context.Context, attendance.ClassContext) ([]attendance.RosterMember, error) {
	return []attendance.RosterMember{
		{StudentID: "id1", DisplayName: "Alice"},
		{StudentID: "id2", DisplayName: "Bob"},
		{StudentID: "id3", DisplayName: "Chandra"},
	}, nil
}

func newTestDraftsHandler(store attendance.SessionSaver) *DraftsHandler {
	svc := attendance.NewService(scriptedMatcher{}, classRoster{}, store, attendance.ServiceConfig{
		Thresholds: attendance.DefaultThresholds(),
		Workers:    2,
		DraftTTL:   time.Minute,
	}, testLogger(), nil)
	return NewDraftsHandler(svc, 1, testLogger())
}

var classFields = map[string]string{
	"department": "Computer Science",
	"year":       "Second",
	"division":   "A",
	"subject":    "Databases",
	"time_slot":  "09:00-10:00",
	"taken_by":   "teacher-7",
}

func createDraft(t *testing.T, h *DraftsHandler, photos ...string) DraftResponse {
	t.Helper()
	data := make(map[string][]byte, len(photos))
	for _, name := range photos {
		data[name] = []byte(name)
	}
	recorder := httptest.NewRecorder()
	h.Create(recorder, multipartRequest(t, "/api/v1/attendance/drafts", classFields, data, photos))
	assertStatusCode(t, recorder, http.StatusCreated)
	var draft DraftResponse
	parseJSONResponse(t, recorder, &draft)
	return draft
}

func TestDraftsHandler_Create(t *testing.T) {
	h := newTestDraftsHandler(mock.NewMockSessionStore())

	draft := createDraft(t, h, "front.jpg", "back.jpg")

	if draft.ID == "" {
		t.Fatal("expected draft ID")
	}
	if draft.TakenBy != "teacher-7" {
		t.Errorf("expected taken_by 'teacher-7', got '%s'", draft.TakenBy)
	}
	if len(draft.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(draft.Records))
	}
	want := []attendance.Status{attendance.StatusPresent, attendance.StatusPresent, attendance.StatusAbsent}
	for i, rec := range draft.Records {
		if rec.Status != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], rec.Status)
		}
	}
	if draft.Tally.Present != 2 || draft.Tally.Absent != 1 {
		t.Errorf("unexpected tally: %+v", draft.Tally)
	}
	if len(draft.FaceMatches) != 4 {
		t.Errorf("expected 4 face matches, got %d", len(draft.FaceMatches))
	}
	if draft.Report.Comparisons != 12 {
		t.Errorf("expected 12 comparisons, got %d", draft.Report.Comparisons)
	}
}

func TestDraftsHandler_Create_DetectionFailureIsReported(t *testing.T) {
	h := newTestDraftsHandler(mock.NewMockSessionStore())
	data := map[string][]byte{"good.jpg": []byte("good"), "bad.jpg": []byte("corrupt")}
	recorder := httptest.NewRecorder()

	h.Create(recorder, multipartRequest(t, "/api/v1/attendance/drafts", classFields, data, []string{"bad.jpg", "good.jpg"}))

	assertStatusCode(t, recorder, http.StatusCreated)
	var draft DraftResponse
	parseJSONResponse(t, recorder, &draft)
	if len(draft.Report.DetectionFailures) != 1 {
		t.Errorf("expected 1 detection failure, got %v", draft.Report.DetectionFailures)
	}
	if draft.Tally.Present != 2 {
		t.Errorf("expected the good photo to still count, got %+v", draft.Tally)
	}
}

func TestDraftsHandler_Create_Validation(t *testing.T) {
	h := newTestDraftsHandler(mock.NewMockSessionStore())

	t.Run("missing subject", func(t *testing.T) {
		fields := map[string]string{}
		for k, v := range classFields {
			fields[k] = v
		}
		delete(fields, "subject")
		recorder := httptest.NewRecorder()

		h.Create(recorder, multipartRequest(t, "/x", fields, map[string][]byte{"a.jpg": []byte("a")}, []string{"a.jpg"}))

		assertStatusCode(t, recorder, http.StatusBadRequest)
		assertJSONError(t, recorder, "validation failed: subject is required")
	})

	t.Run("no photos", func(t *testing.T) {
		recorder := httptest.NewRecorder()

		h.Create(recorder, multipartRequest(t, "/x", classFields, nil, nil))

		assertStatusCode(t, recorder, http.StatusBadRequest)
		assertJSONError(t, recorder, "no photos provided")
	})

	t.Run("not multipart", func(t *testing.T) {
		recorder := httptest.NewRecorder()

		h.Create(recorder, jsonRequest(t, http.MethodPost, "/x", classFields))

		assertStatusCode(t, recorder, http.StatusBadRequest)
	})
}

func TestDraftsHandler_CorrectAndCommit(t *testing.T) {
	store := mock.NewMockSessionStore()
	h := newTestDraftsHandler(store)
	draft := createDraft(t, h, "front.jpg")

	recorder := httptest.NewRecorder()
	req := jsonRequest(t, http.MethodPut, "/x", CorrectRequest{Status: attendance.StatusPresent, Reason: "sat behind a pillar"})
	h.Correct(recorder, requestWithChiParams(req, map[string]string{"id": draft.ID, "studentId": "id3"}))

	assertStatusCode(t, recorder, http.StatusOK)
	var dec attendance.StudentDecision
	parseJSONResponse(t, recorder, &dec)
	if dec.Status != attendance.StatusPresent || !dec.ManuallyCorrected {
		t.Errorf("unexpected decision: %+v", dec)
	}

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	h.Commit(recorder, requestWithChiParams(req, map[string]string{"id": draft.ID}))

	assertStatusCode(t, recorder, http.StatusCreated)
	var session attendance.Session
	parseJSONResponse(t, recorder, &session)
	if session.Subject != "Databases" || session.TakenBy != "teacher-7" {
		t.Errorf("unexpected session: %+v", session)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 stored session, got %d", store.Count())
	}

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	h.Get(recorder, requestWithChiParams(req, map[string]string{"id": draft.ID}))
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestDraftsHandler_Correct_Errors(t *testing.T) {
	h := newTestDraftsHandler(mock.NewMockSessionStore())
	draft := createDraft(t, h, "front.jpg")

	tests := []struct {
		name    string
		draftID string
		student string
		body    any
		status  int
	}{
		{"unknown status", draft.ID, "id1", map[string]string{"status": "Late"}, http.StatusBadRequest},
		{"missing status", draft.ID, "id1", map[string]string{}, http.StatusBadRequest},
		{"unknown student", draft.ID, "id9", CorrectRequest{Status: attendance.StatusAbsent}, http.StatusNotFound},
		{"unknown draft", "nope", "id1", CorrectRequest{Status: attendance.StatusAbsent}, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := jsonRequest(t, http.MethodPut, "/x", tc.body)

			h.Correct(recorder, requestWithChiParams(req, map[string]string{"id": tc.draftID, "studentId": tc.student}))

			assertStatusCode(t, recorder, tc.status)
		})
	}
}

func TestDraftsHandler_Commit_StoreFailure(t *testing.T) {
	store := mock.NewMockSessionStore()
	store.SaveError = fmt.Errorf("connection refused")
	h := newTestDraftsHandler(store)
	draft := createDraft(t, h, "front.jpg")

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	h.Commit(recorder, requestWithChiParams(req, map[string]string{"id": draft.ID}))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to save attendance")
}

// stallingStore holds SaveSession until release is closed.
type stallingStore struct {
	*mock.MockSessionStore
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) SaveSession(ctx context.Context, session *attendance.Session) error {
	close(s.entered)
	<-s.release
	return s.MockSessionStore.SaveSession(ctx, session)
}

func TestDraftsHandler_Correct_DuringCommit(t *testing.T) {
	store := &stallingStore{
		MockSessionStore: mock.NewMockSessionStore(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	h := newTestDraftsHandler(store)
	draft := createDraft(t, h, "front.jpg")

	committed := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		h.Commit(recorder, requestWithChiParams(req, map[string]string{"id": draft.ID}))
		committed <- recorder
	}()
	<-store.entered

	recorder := httptest.NewRecorder()
	req := jsonRequest(t, http.MethodPut, "/x", CorrectRequest{Status: attendance.StatusPresent, Reason: "late arrival"})
	h.Correct(recorder, requestWithChiParams(req, map[string]string{"id": draft.ID, "studentId": "id3"}))
	assertStatusCode(t, recorder, http.StatusConflict)

	close(store.release)
	commit := <-committed
	assertStatusCode(t, commit, http.StatusCreated)
	var session attendance.Session
	parseJSONResponse(t, commit, &session)
	for _, r := range session.Records {
		if r.StudentID == "id3" && r.Status != attendance.StatusAbsent {
			t.Errorf("rejected correction leaked into the session: %+v", r)
		}
	}
}
