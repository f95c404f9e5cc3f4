// Package attendance reconciles per-face similarity scores from class photos
// into one Present/Absent decision per enrolled student.
//
// Data flows forward only: photos -> detected faces -> attempts -> per-face
// best match -> per-student decision -> optional manual correction -> session.
package attendance

import "context"

// Status is the attendance verdict for one student.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Default thresholds, on the same 0-100 scale as similarity.
const (
	DefaultFaceMatchThreshold = 40.0
	DefaultPresenceThreshold  = 40.0
)

// Thresholds configures the resolver and aggregator.
type Thresholds struct {
	FaceMatch float64 `json:"face_match_threshold" yaml:"face_match_threshold"`
	Presence  float64 `json:"presence_threshold" yaml:"presence_threshold"`
}

// DefaultThresholds returns the default threshold pair.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FaceMatch: DefaultFaceMatchThreshold,
		Presence:  DefaultPresenceThreshold,
	}
}

// RosterMember is one enrolled student. ReferenceImage is an opaque handle
// understood by the Matcher, not pixel data.
type RosterMember struct {
	StudentID      string `json:"student_id" yaml:"student_id"`
	DisplayName    string `json:"name" yaml:"name"`
	ReferenceImage string `json:"reference_image" yaml:"reference_image"`
}

// Photo is one submitted class photo (encoded image bytes).
type Photo struct {
	Name string
	Data []byte
}

// DetectedFace is a face found in a photo. Pixels holds a JPEG-encoded crop
// of the face; BBox is [x1, y1, x2, y2] in photo pixel coordinates.
type DetectedFace struct {
	Index    int
	BBox     []float64
	DetScore float64
	Pixels   []byte
}

// Comparison is the outcome of comparing one face against one reference.
type Comparison struct {
	Similarity float64
	Verified   bool
}

// Matcher is the external face service.
// DetectFaces may return no faces. Compare must be deterministic for
// identical inputs.
type Matcher interface {
	DetectFaces(ctx context.Context, photo Photo) ([]DetectedFace, error)
	Compare(ctx context.Context, face DetectedFace, member RosterMember) (Comparison, error)
}

// MatchAttempt is one comparison between a detected face and a roster member.
// Attempts are facts: they are never mutated after collection.
type MatchAttempt struct {
	StudentID  string  `json:"student_id"`
	PhotoIndex int     `json:"photo_index"`
	FaceIndex  int     `json:"face_index"`
	Similarity float64 `json:"similarity"`
	Verified   bool    `json:"verified"`
}

// faceKey identifies one detected face across the batch.
type faceKey struct {
	photo int
	face  int
}

func (a MatchAttempt) face() faceKey {
	return faceKey{photo: a.PhotoIndex, face: a.FaceIndex}
}

// FaceMatch is the winning verified attempt for one detected face.
type FaceMatch struct {
	StudentID  string  `json:"student_id"`
	PhotoIndex int     `json:"photo_index"`
	FaceIndex  int     `json:"face_index"`
	Similarity float64 `json:"similarity"`
}

// StudentDecision is the verdict and evidence for one roster member.
type StudentDecision struct {
	StudentID         string  `json:"student_id"`
	StudentName       string  `json:"student_name"`
	Status            Status  `json:"status"`
	Confidence        float64 `json:"confidence"`
	ManuallyCorrected bool    `json:"manually_corrected"`
	CorrectionReason  *string `json:"correction_reason"`
	SourcePhotoIndex  *int    `json:"source_photo_index"`
	SourceFaceIndex   *int    `json:"source_face_index"`

	Attempts       int `json:"attempts"`
	PhotosAppeared int `json:"photos_appeared"`
	FacesMatched   int `json:"faces_matched"`
}

func (d StudentDecision) clone() StudentDecision {
	out := d
	if d.CorrectionReason != nil {
		r := *d.CorrectionReason
		out.CorrectionReason = &r
	}
	if d.SourcePhotoIndex != nil {
		p := *d.SourcePhotoIndex
		out.SourcePhotoIndex = &p
	}
	if d.SourceFaceIndex != nil {
		f := *d.SourceFaceIndex
		out.SourceFaceIndex = &f
	}
	return out
}

// ClassContext identifies the class an attendance session belongs to.
type ClassContext struct {
	Department string `json:"department" validate:"required"`
	Year       string `json:"year" validate:"required"`
	Division   string `json:"division" validate:"required"`
	Subject    string `json:"subject" validate:"required"`
	TimeSlot   string `json:"time_slot" validate:"required"`
}
