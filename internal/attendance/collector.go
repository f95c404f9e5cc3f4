package attendance

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/fingerprint"
)

// DefaultWorkers bounds concurrent calls into the Matcher.
const DefaultWorkers = 5

// Observer receives collection events, typically for metrics.
type Observer interface {
	ObserveDetection(faces int, err error)
	ObserveComparison(elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDetection(int, error)            {}
func (nopObserver) ObserveComparison(time.Duration, error) {}

// CollectReport summarizes one collection run.
type CollectReport struct {
	Photos             int                      `json:"photos"`
	FacesPerPhoto      []int                    `json:"faces_per_photo"`
	Comparisons        int                      `json:"comparisons"`
	DetectionFailures  []*DetectionFailedError  `json:"-"`
	ComparisonFailures []*ComparisonFailedError `json:"-"`
	// DuplicatePhotos pairs photos that look like the same shot. Faces in
	// them are still compared; aggregation keeps the best score per student.
	DuplicatePhotos []fingerprint.Duplicate `json:"duplicate_photos"`
}

// Faces returns the total number of detected faces.
func (r CollectReport) Faces() int {
	n := 0
	for _, c := range r.FacesPerPhoto {
		n += c
	}
	return n
}

// Collector compares every detected face against every roster member.
type Collector struct {
	matcher   Matcher
	threshold float64
	workers   int
	log       *zap.Logger
	observer  Observer
	onCompare func()
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithWorkers sets the worker pool size. Values below 1 are ignored.
func WithWorkers(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger used for recoverable failures.
func WithLogger(l *zap.Logger) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver sets the collection observer.
func WithObserver(o Observer) CollectorOption {
	return func(c *Collector) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithProgress registers a callback invoked after every comparison,
// successful or not. It is called from worker goroutines.
func WithProgress(fn func()) CollectorOption {
	return func(c *Collector) {
		c.onCompare = fn
	}
}

// NewCollector creates a collector. The face-match threshold is captured
// here: attempts are labelled verified against it and never re-labelled.
func NewCollector(m Matcher, faceMatchThreshold float64, opts ...CollectorOption) *Collector {
	c := &Collector{
		matcher:   m,
		threshold: faceMatchThreshold,
		workers:   DefaultWorkers,
		log:       zap.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectedPhoto struct {
	index int
	faces []DetectedFace
}

type comparisonJob struct {
	slot   int
	photo  int
	face   DetectedFace
	member RosterMember
}

type slotResult struct {
	attempt MatchAttempt
	ok      bool
}

// Collect runs detection on every photo and comparison on every
// (face, member) pair, then returns once all workers finished. Attempts are
// returned in (photo, face, roster) order whatever the completion order was.
// Detection and comparison failures are logged and reported, never returned.
func (c *Collector) Collect(ctx context.Context, photos []Photo, roster []RosterMember) ([]MatchAttempt, CollectReport) {
	report := CollectReport{
		Photos:        len(photos),
		FacesPerPhoto: make([]int, len(photos)),
	}

	images := make([][]byte, len(photos))
	for i := range photos {
		images[i] = photos[i].Data
	}
	report.DuplicatePhotos = fingerprint.FindDuplicates(images, fingerprint.DefaultMaxDistance)
	for _, d := range report.DuplicatePhotos {
		c.log.Warn("duplicate photo",
			zap.String("photo", photos[d.Second].Name),
			zap.String("same_as", photos[d.First].Name),
		)
	}

	detected := c.detectAll(ctx, photos, &report)

	var jobs []comparisonJob
	for _, dp := range detected {
		for _, face := range dp.faces {
			for _, member := range roster {
				jobs = append(jobs, comparisonJob{
					slot:   len(jobs),
					photo:  dp.index,
					face:   face,
					member: member,
				})
			}
		}
	}
	report.Comparisons = len(jobs)

	results := make([]slotResult, len(jobs))
	failures := make([]*ComparisonFailedError, len(jobs))

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(j comparisonJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Each worker owns its slot; no locking needed.
			attempt, err := c.compare(ctx, j)
			if err != nil {
				failures[j.slot] = err
			} else {
				results[j.slot] = slotResult{attempt: attempt, ok: true}
			}
			if c.onCompare != nil {
				c.onCompare()
			}
		}(job)
	}
	wg.Wait()

	attempts := make([]MatchAttempt, 0, len(jobs))
	for i, r := range results {
		if r.ok {
			attempts = append(attempts, r.attempt)
			continue
		}
		if f := failures[i]; f != nil {
			report.ComparisonFailures = append(report.ComparisonFailures, f)
		}
	}

	c.log.Info("attempt collection finished",
		zap.Int("photos", report.Photos),
		zap.Int("faces", report.Faces()),
		zap.Int("comparisons", report.Comparisons),
		zap.Int("attempts", len(attempts)),
		zap.Int("detection_failures", len(report.DetectionFailures)),
		zap.Int("comparison_failures", len(report.ComparisonFailures)),
	)
	return attempts, report
}

// detectAll detects faces in every photo using the same worker bound.
// Face indices are renumbered 1..n in detection order within each photo.
func (c *Collector) detectAll(ctx context.Context, photos []Photo, report *CollectReport) []detectedPhoto {
	detected := make([]detectedPhoto, len(photos))
	failures := make([]*DetectionFailedError, len(photos))

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, photo := range photos {
		wg.Add(1)
		go func(i int, p Photo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			photoIndex := i + 1
			detected[i].index = photoIndex

			faces, err := c.detect(ctx, p)
			c.observer.ObserveDetection(len(faces), err)
			if err != nil {
				failures[i] = &DetectionFailedError{PhotoIndex: photoIndex, Err: err}
				return
			}
			for n := range faces {
				faces[n].Index = n + 1
			}
			detected[i].faces = faces
		}(i, photo)
	}
	wg.Wait()

	for i := range detected {
		report.FacesPerPhoto[i] = len(detected[i].faces)
		if f := failures[i]; f != nil {
			c.log.Warn("face detection failed, photo skipped",
				zap.Int("photo_index", f.PhotoIndex),
				zap.String("photo", photos[i].Name),
				zap.Error(f.Err),
			)
			report.DetectionFailures = append(report.DetectionFailures, f)
		} else if len(detected[i].faces) == 0 {
			c.log.Info("no faces detected",
				zap.Int("photo_index", i+1),
				zap.String("photo", photos[i].Name),
			)
		}
	}
	return detected
}

func (c *Collector) detect(ctx context.Context, p Photo) (faces []DetectedFace, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			faces, err = nil, errors.New("matcher panicked during detection")
		}
	}()
	return c.matcher.DetectFaces(ctx, p)
}

func (c *Collector) compare(ctx context.Context, j comparisonJob) (MatchAttempt, *ComparisonFailedError) {
	fail := func(err error) *ComparisonFailedError {
		f := &ComparisonFailedError{
			PhotoIndex: j.photo,
			FaceIndex:  j.face.Index,
			StudentID:  j.member.StudentID,
			Err:        err,
		}
		c.log.Warn("face comparison failed, attempt skipped",
			zap.Int("photo_index", f.PhotoIndex),
			zap.Int("face_index", f.FaceIndex),
			zap.String("student_id", f.StudentID),
			zap.Error(err),
		)
		return f
	}

	if err := ctx.Err(); err != nil {
		c.observer.ObserveComparison(0, err)
		return MatchAttempt{}, fail(err)
	}

	start := time.Now()
	cmp, err := c.safeCompare(ctx, j)
	if err == nil && math.IsNaN(cmp.Similarity) {
		err = errors.New("matcher returned NaN similarity")
	}
	c.observer.ObserveComparison(time.Since(start), err)
	if err != nil {
		return MatchAttempt{}, fail(err)
	}

	similarity := clampSimilarity(cmp.Similarity)
	return MatchAttempt{
		StudentID:  j.member.StudentID,
		PhotoIndex: j.photo,
		FaceIndex:  j.face.Index,
		Similarity: similarity,
		Verified:   similarity >= c.threshold,
	}, nil
}

func (c *Collector) safeCompare(ctx context.Context, j comparisonJob) (cmp Comparison, err error) {
	defer func() {
		if r := recover(); r != nil {
			cmp, err = Comparison{}, errors.New("matcher panicked during comparison")
		}
	}()
	return c.matcher.Compare(ctx, j.face, j.member)
}

func clampSimilarity(s float64) float64 {
	return min(max(s, 0), 100)
}
