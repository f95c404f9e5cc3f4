package matcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// References loads reference images by handle.
type References interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// FaceService is the part of the face service the matcher needs. *Client
// implements it.
type FaceService interface {
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
	Verify(ctx context.Context, face, reference []byte) (VerifyResult, error)
}

// Matcher implements attendance.Matcher over the face service.
type Matcher struct {
	service FaceService
	refs    References
	log     *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for dropped detections.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates a Matcher.
func New(service FaceService, refs References, opts ...Option) *Matcher {
	m := &Matcher{service: service, refs: refs, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DetectFaces finds the faces in a photo and crops each one. Overlapping
// duplicate detections are dropped and so are boxes outside the photo.
func (m *Matcher) DetectFaces(ctx context.Context, photo attendance.Photo) ([]attendance.DetectedFace, error) {
	img, err := decodeImage(photo.Data)
	if err != nil {
		return nil, err
	}

	dets, err := m.service.Detect(ctx, photo.Data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	faces := make([]attendance.DetectedFace, 0, len(dets))
	for _, d := range dedupeDetections(dets) {
		pixels, err := cropFace(img, d.BBox)
		if err != nil {
			m.log.Warn("face detection dropped",
				zap.String("photo", photo.Name),
				zap.Float64s("bbox", d.BBox),
				zap.Float64("det_score", d.DetScore),
				zap.Error(err),
			)
			continue
		}
		faces = append(faces, attendance.DetectedFace{
			Index:    len(faces) + 1,
			BBox:     d.BBox,
			DetScore: d.DetScore,
			Pixels:   pixels,
		})
	}
	return faces, nil
}

// Compare verifies one face against a roster member's reference image.
func (m *Matcher) Compare(ctx context.Context, face attendance.DetectedFace, member attendance.RosterMember) (attendance.Comparison, error) {
	ref, err := m.refs.Load(ctx, member.ReferenceImage)
	if err != nil {
		return attendance.Comparison{}, err
	}
	res, err := m.service.Verify(ctx, face.Pixels, ref)
	if err != nil {
		return attendance.Comparison{}, fmt.Errorf("verifying face: %w", err)
	}
	return attendance.Comparison{Similarity: res.Similarity, Verified: res.Verified}, nil
}

var _ attendance.Matcher = (*Matcher)(nil)
