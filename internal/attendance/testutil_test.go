package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeMatcher serves scores from a table keyed by photo name, face index and
// student ID. Faces are produced per photo name.
type fakeMatcher struct {
	mu sync.Mutex

	faces       map[string]int
	scores      map[string]float64
	detectErr   map[string]error
	compareErr  map[string]error
	comparisons int
}

func newFakeMatcher() *fakeMatcher {
	return &fakeMatcher{
		faces:      make(map[string]int),
		scores:     make(map[string]float64),
		detectErr:  make(map[string]error),
		compareErr: make(map[string]error),
	}
}

func scoreKey(photo string, face int, studentID string) string {
	return fmt.Sprintf("%s/%d/%s", photo, face, studentID)
}

func (m *fakeMatcher) withFaces(photo string, n int) *fakeMatcher {
	m.faces[photo] = n
	return m
}

func (m *fakeMatcher) withScore(photo string, face int, studentID string, similarity float64) *fakeMatcher {
	m.scores[scoreKey(photo, face, studentID)] = similarity
	return m
}

func (m *fakeMatcher) DetectFaces(ctx context.Context, photo Photo) ([]DetectedFace, error) {
	if err := m.detectErr[photo.Name]; err != nil {
		return nil, err
	}
	faces := make([]DetectedFace, m.faces[photo.Name])
	for i := range faces {
		// Pixels carry the photo name so Compare can find the score.
		faces[i] = DetectedFace{Index: i + 1, Pixels: []byte(photo.Name)}
	}
	return faces, nil
}

func (m *fakeMatcher) Compare(ctx context.Context, face DetectedFace, member RosterMember) (Comparison, error) {
	m.mu.Lock()
	m.comparisons++
	m.mu.Unlock()

	key := scoreKey(string(face.Pixels), face.Index, member.StudentID)
	if err := m.compareErr[key]; err != nil {
		return Comparison{}, err
	}
	s := m.scores[key]
	return Comparison{Similarity: s, Verified: s >= 50}, nil
}

func (m *fakeMatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.comparisons
}

var errUnreadable = errors.New("unreadable image")

func photos(names ...string) []Photo {
	out := make([]Photo, len(names))
	for i, n := range names {
		out[i] = Photo{Name: n, Data: []byte(n)}
	}
	return out
}

func rosterAB() []RosterMember {
	return []RosterMember{
		{StudentID: "id1", DisplayName: "Alice", ReferenceImage: "alice.jpg"},
		{StudentID: "id2", DisplayName: "Bob", ReferenceImage: "bob.jpg"},
	}
}

func attempt(student string, photo, face int, similarity, threshold float64) MatchAttempt {
	return MatchAttempt{
		StudentID:  student,
		PhotoIndex: photo,
		FaceIndex:  face,
		Similarity: similarity,
		Verified:   similarity >= threshold,
	}
}

func validClass() ClassContext {
	return ClassContext{
		Department: "Computer Science",
		Year:       "TE",
		Division:   "A",
		Subject:    "Databases",
		TimeSlot:   "09:00-10:00",
	}
}

func intPtr(v int) *int { return &v }
