package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/fingerprint"
)

const defaultMaxUploadMB = 64

// DraftsHandler handles attendance taking: drafts, corrections and commit.
type DraftsHandler struct {
	service   *attendance.Service
	maxUpload int64
	log       *zap.Logger
}

// NewDraftsHandler creates a new drafts handler.
func NewDraftsHandler(service *attendance.Service, maxUploadMB int, log *zap.Logger) *DraftsHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = defaultMaxUploadMB
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DraftsHandler{
		service:   service,
		maxUpload: int64(maxUploadMB) << 20,
		log:       log,
	}
}

// DraftResponse is the JSON view of a draft.
type DraftResponse struct {
	ID          string                       `json:"id"`
	Class       attendance.ClassContext      `json:"class"`
	TakenBy     string                       `json:"taken_by,omitempty"`
	Thresholds  attendance.Thresholds        `json:"thresholds"`
	Records     []attendance.StudentDecision `json:"records"`
	Tally       attendance.Tally             `json:"tally"`
	FaceMatches []attendance.FaceMatch       `json:"face_matches"`
	Report      ReportResponse               `json:"report"`
	CreatedAt   time.Time                    `json:"created_at"`
}

// ReportResponse is the JSON view of a collection report.
type ReportResponse struct {
	Photos             int                     `json:"photos"`
	FacesPerPhoto      []int                   `json:"faces_per_photo"`
	Comparisons        int                     `json:"comparisons"`
	DetectionFailures  []string                `json:"detection_failures"`
	ComparisonFailures int                     `json:"comparison_failures"`
	DuplicatePhotos    []fingerprint.Duplicate `json:"duplicate_photos"`
}

func newDraftResponse(d *attendance.Draft) DraftResponse {
	report := ReportResponse{
		Photos:             d.Report.Photos,
		FacesPerPhoto:      d.Report.FacesPerPhoto,
		Comparisons:        d.Report.Comparisons,
		DetectionFailures:  make([]string, 0, len(d.Report.DetectionFailures)),
		ComparisonFailures: len(d.Report.ComparisonFailures),
		DuplicatePhotos:    d.Report.DuplicatePhotos,
	}
	if report.DuplicatePhotos == nil {
		report.DuplicatePhotos = []fingerprint.Duplicate{}
	}
	for _, f := range d.Report.DetectionFailures {
		report.DetectionFailures = append(report.DetectionFailures, f.Error())
	}
	matches := d.FaceMatches
	if matches == nil {
		matches = []attendance.FaceMatch{}
	}
	return DraftResponse{
		ID:          d.ID,
		Class:       d.Class,
		TakenBy:     d.TakenBy,
		Thresholds:  d.Thresholds,
		Records:     d.Decisions.List(),
		Tally:       d.Decisions.Tally(),
		FaceMatches: matches,
		Report:      report,
		CreatedAt:   d.CreatedAt,
	}
}

// readPhotos reads uploaded photos in submission order.
func readPhotos(files []*multipart.FileHeader) ([]attendance.Photo, error) {
	photos := make([]attendance.Photo, 0, len(files))
	for _, fh := range files {
		data, err := func() ([]byte, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
			}
			defer f.Close()
			return io.ReadAll(f)
		}()
		if err != nil {
			return nil, err
		}
		photos = append(photos, attendance.Photo{Name: fh.Filename, Data: data})
	}
	return photos, nil
}

// Create takes attendance from uploaded class photos and returns a draft.
func (h *DraftsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	class := attendance.ClassContext{
		Department: r.FormValue("department"),
		Year:       r.FormValue("year"),
		Division:   r.FormValue("division"),
		Subject:    r.FormValue("subject"),
		TimeSlot:   r.FormValue("time_slot"),
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no photos provided")
		return
	}
	photos, err := readPhotos(files)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err := h.service.Take(r.Context(), class, r.FormValue("taken_by"), photos)
	if err != nil {
		respondServiceError(w, h.log, "failed to take attendance", err)
		return
	}
	respondJSON(w, http.StatusCreated, newDraftResponse(draft))
}

// Get returns an uncommitted draft.
func (h *DraftsHandler) Get(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.Draft(chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.log, "failed to load draft", err)
		return
	}
	respondJSON(w, http.StatusOK, newDraftResponse(draft))
}

// CorrectRequest is the body of a correction.
type CorrectRequest struct {
	Status attendance.Status `json:"status" validate:"required,oneof=Present Absent"`
	Reason string            `json:"reason"`
}

// Correct overrides the decision for one student in a draft.
func (h *DraftsHandler) Correct(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := attendance.ValidateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	draftID := chi.URLParam(r, "id")
	studentID := chi.URLParam(r, "studentId")
	dec, err := h.service.Correct(draftID, studentID, req.Status, req.Reason)
	if err != nil {
		h.log.Debug("correction rejected",
			zap.String("draft_id", sanitizeForLog(draftID)),
			zap.String("student_id", sanitizeForLog(studentID)),
			zap.Error(err),
		)
		respondServiceError(w, h.log, "failed to correct attendance", err)
		return
	}
	respondJSON(w, http.StatusOK, dec)
}

// Commit saves a draft as an attendance session.
func (h *DraftsHandler) Commit(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Commit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.log, "failed to save attendance", err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}
