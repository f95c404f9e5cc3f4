package attendance

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kozaktomas/rollcall/internal/fingerprint"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// go-cache janitors only stop when their cache is garbage collected.
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func TestCollect_ComparesEveryFaceWithEveryMember(t *testing.T) {
	m := newFakeMatcher().
		withFaces("class.jpg", 2).
		withScore("class.jpg", 1, "id1", 85).
		withScore("class.jpg", 1, "id2", 30).
		withScore("class.jpg", 2, "id1", 20).
		withScore("class.jpg", 2, "id2", 90)

	attempts, report := NewCollector(m, 40).Collect(context.Background(), photos("class.jpg"), rosterAB())

	assert.Equal(t, []MatchAttempt{
		{StudentID: "id1", PhotoIndex: 1, FaceIndex: 1, Similarity: 85, Verified: true},
		{StudentID: "id2", PhotoIndex: 1, FaceIndex: 1, Similarity: 30, Verified: false},
		{StudentID: "id1", PhotoIndex: 1, FaceIndex: 2, Similarity: 20, Verified: false},
		{StudentID: "id2", PhotoIndex: 1, FaceIndex: 2, Similarity: 90, Verified: true},
	}, attempts)
	assert.Equal(t, 4, m.count())
	assert.Equal(t, 4, report.Comparisons)
	assert.Equal(t, 2, report.Faces())
}

func TestCollect_IndicesArePerPhoto(t *testing.T) {
	m := newFakeMatcher().withFaces("p1.jpg", 1).withFaces("p2.jpg", 3)
	roster := []RosterMember{{StudentID: "id1"}}

	attempts, report := NewCollector(m, 40, WithWorkers(3)).Collect(context.Background(), photos("p1.jpg", "p2.jpg"), roster)

	require.Len(t, attempts, 4)
	assert.Equal(t, []int{1, 3}, report.FacesPerPhoto)
	assert.Equal(t, 1, attempts[0].PhotoIndex)
	assert.Equal(t, 1, attempts[0].FaceIndex)
	for i, a := range attempts[1:] {
		assert.Equal(t, 2, a.PhotoIndex)
		assert.Equal(t, i+1, a.FaceIndex)
	}
}

func TestCollect_VerifiedUsesConfiguredThreshold(t *testing.T) {
	// The matcher's own verified flag uses 50; the collector must use 40.
	m := newFakeMatcher().withFaces("p.jpg", 1).withScore("p.jpg", 1, "id1", 45)

	attempts, _ := NewCollector(m, 40).Collect(context.Background(), photos("p.jpg"), rosterAB()[:1])

	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Verified)
}

func TestCollect_ZeroFaces(t *testing.T) {
	m := newFakeMatcher().withFaces("empty.jpg", 0).withFaces("full.jpg", 1)

	attempts, report := NewCollector(m, 40).Collect(context.Background(), photos("empty.jpg", "full.jpg"), rosterAB())

	assert.Len(t, attempts, 2)
	for _, a := range attempts {
		assert.Equal(t, 2, a.PhotoIndex)
	}
	assert.Equal(t, []int{0, 1}, report.FacesPerPhoto)
	assert.Empty(t, report.DetectionFailures)
}

func TestCollect_DetectionFailureIsIsolated(t *testing.T) {
	m := newFakeMatcher().withFaces("bad.jpg", 2).withFaces("good.jpg", 1)
	m.detectErr["bad.jpg"] = errUnreadable

	attempts, report := NewCollector(m, 40).Collect(context.Background(), photos("bad.jpg", "good.jpg"), rosterAB())

	assert.Len(t, attempts, 2)
	require.Len(t, report.DetectionFailures, 1)
	assert.Equal(t, 1, report.DetectionFailures[0].PhotoIndex)
	assert.ErrorIs(t, report.DetectionFailures[0], ErrDetectionFailed)
	assert.ErrorIs(t, report.DetectionFailures[0], errUnreadable)
}

func TestCollect_ComparisonFailureIsIsolated(t *testing.T) {
	m := newFakeMatcher().
		withFaces("p.jpg", 1).
		withScore("p.jpg", 1, "id1", 70).
		withScore("p.jpg", 1, "id2", 80)
	m.compareErr[scoreKey("p.jpg", 1, "id2")] = errors.New("service timeout")

	attempts, report := NewCollector(m, 40).Collect(context.Background(), photos("p.jpg"), rosterAB())

	require.Len(t, attempts, 1)
	assert.Equal(t, "id1", attempts[0].StudentID)
	require.Len(t, report.ComparisonFailures, 1)
	f := report.ComparisonFailures[0]
	assert.Equal(t, 1, f.PhotoIndex)
	assert.Equal(t, 1, f.FaceIndex)
	assert.Equal(t, "id2", f.StudentID)
	assert.ErrorIs(t, f, ErrComparisonFailed)
}

type panickyMatcher struct{ *fakeMatcher }

func (p panickyMatcher) Compare(ctx context.Context, face DetectedFace, member RosterMember) (Comparison, error) {
	if member.StudentID == "id2" {
		panic("model crashed")
	}
	return p.fakeMatcher.Compare(ctx, face, member)
}

func TestCollect_MatcherPanicIsIsolated(t *testing.T) {
	m := newFakeMatcher().withFaces("p.jpg", 1).withScore("p.jpg", 1, "id1", 70)

	attempts, report := NewCollector(panickyMatcher{m}, 40).Collect(context.Background(), photos("p.jpg"), rosterAB())

	require.Len(t, attempts, 1)
	assert.Len(t, report.ComparisonFailures, 1)
}

// slowMatcher completes later comparisons first to shuffle completion order.
type slowMatcher struct {
	*fakeMatcher
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowMatcher) Compare(ctx context.Context, face DetectedFace, member RosterMember) (Comparison, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	delay := time.Duration(10-face.Index) * time.Millisecond
	time.Sleep(delay)
	return s.fakeMatcher.Compare(ctx, face, member)
}

func TestCollect_OrderStableAndPoolBounded(t *testing.T) {
	m := newFakeMatcher().withFaces("p.jpg", 6)
	for face := 1; face <= 6; face++ {
		m.withScore("p.jpg", face, "id1", float64(face*10))
	}
	sm := &slowMatcher{fakeMatcher: m}

	attempts, _ := NewCollector(sm, 40, WithWorkers(2)).Collect(context.Background(), photos("p.jpg"), rosterAB()[:1])

	require.Len(t, attempts, 6)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.FaceIndex)
		assert.InDelta(t, float64((i+1)*10), a.Similarity, 1e-9)
	}
	assert.LessOrEqual(t, sm.peak.Load(), int32(2))
}

func TestCollect_ProgressAndObserver(t *testing.T) {
	m := newFakeMatcher().withFaces("p1.jpg", 1).withFaces("p2.jpg", 2)
	m.detectErr["p3.jpg"] = errUnreadable
	obs := &recordingObserver{}
	var calls atomic.Int32

	_, report := NewCollector(m, 40,
		WithObserver(obs),
		WithProgress(func() { calls.Add(1) }),
	).Collect(context.Background(), photos("p1.jpg", "p2.jpg", "p3.jpg"), rosterAB())

	assert.Equal(t, int32(report.Comparisons), calls.Load())
	assert.Equal(t, 3, obs.detections)
	assert.Equal(t, 1, obs.detectionErrors)
	assert.Equal(t, 6, obs.comparisons)
}

func TestCollect_CancelledContextDropsAttempts(t *testing.T) {
	m := newFakeMatcher().withFaces("p.jpg", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, report := NewCollector(m, 40).Collect(ctx, photos("p.jpg"), rosterAB())

	assert.Empty(t, attempts)
	assert.Len(t, report.DetectionFailures, 1)
}

type recordingObserver struct {
	mu              sync.Mutex
	detections      int
	detectionErrors int
	comparisons     int
}

func (o *recordingObserver) ObserveDetection(_ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.detections++
	if err != nil {
		o.detectionErrors++
	}
}

func (o *recordingObserver) ObserveComparison(time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.comparisons++
}

func checkerboard(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for x := range 64 {
		for y := range 64 {
			if (x/8+y/8)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCollect_ReportsDuplicatePhotos(t *testing.T) {
	shot := checkerboard(t)
	m := newFakeMatcher().withFaces("a.jpg", 1).withFaces("b.jpg", 1).withFaces("c.jpg", 1)
	in := []Photo{{Name: "a.jpg", Data: shot}, {Name: "b.jpg", Data: []byte("b.jpg")}, {Name: "c.jpg", Data: shot}}

	_, report := NewCollector(m, 40).Collect(context.Background(), in, rosterAB())

	assert.Equal(t, []fingerprint.Duplicate{{First: 0, Second: 2, Distance: 0}}, report.DuplicatePhotos)
	assert.Equal(t, 6, report.Comparisons)
}
