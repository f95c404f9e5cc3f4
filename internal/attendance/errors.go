package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrDetectionFailed marks a photo whose faces could not be detected.
	ErrDetectionFailed = errors.New("face detection failed")
	// ErrComparisonFailed marks a single face/student comparison that failed.
	ErrComparisonFailed = errors.New("face comparison failed")
	// ErrValidation marks input that cannot produce a valid session.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a student outside the current decision set.
	ErrNotFound = errors.New("not found")
	// ErrCommitInProgress marks a draft that is being committed and no longer
	// accepts corrections.
	ErrCommitInProgress = errors.New("draft commit in progress")
)

// DetectionFailedError is recoverable: the photo contributes no faces.
type DetectionFailedError struct {
	PhotoIndex int
	Err        error
}

func (e *DetectionFailedError) Error() string {
	return fmt.Sprintf("photo %d: %v: %v", e.PhotoIndex, ErrDetectionFailed, e.Err)
}

func (e *DetectionFailedError) Unwrap() error { return e.Err }

func (e *DetectionFailedError) Is(target error) bool { return target == ErrDetectionFailed }

// ComparisonFailedError is recoverable: that one attempt is omitted.
type ComparisonFailedError struct {
	PhotoIndex int
	FaceIndex  int
	StudentID  string
	Err        error
}

func (e *ComparisonFailedError) Error() string {
	return fmt.Sprintf("photo %d face %d student %s: %v: %v",
		e.PhotoIndex, e.FaceIndex, e.StudentID, ErrComparisonFailed, e.Err)
}

func (e *ComparisonFailedError) Unwrap() error { return e.Err }

func (e *ComparisonFailedError) Is(target error) bool { return target == ErrComparisonFailed }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: %s is required", ErrValidation, e.Field)
	}
	return fmt.Sprintf("%v: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError names the student that is not part of the decision set.
type NotFoundError struct {
	StudentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("student %s: %v", e.StudentID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
