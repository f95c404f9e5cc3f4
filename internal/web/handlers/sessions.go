package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// SessionsHandler handles stored attendance sessions and statistics.
type SessionsHandler struct {
	store         database.SessionStore
	minPercentage float64
	log           *zap.Logger
	now           func() time.Time
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(store database.SessionStore, minPercentage float64, log *zap.Logger) *SessionsHandler {
	if minPercentage <= 0 {
		minPercentage = attendance.DefaultMinAttendancePercentage
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionsHandler{
		store:         store,
		minPercentage: minPercentage,
		log:           log,
		now:           time.Now,
	}
}

// parseFilter reads session filters from the query string.
func parseFilter(r *http.Request) (database.SessionFilter, error) {
	q := r.URL.Query()
	filter := database.SessionFilter{
		DateFrom:   strings.TrimSpace(q.Get("date_from")),
		DateTo:     strings.TrimSpace(q.Get("date_to")),
		Department: q.Get("department"),
		Year:       q.Get("year"),
		Division:   q.Get("division"),
		Subject:    q.Get("subject"),
	}
	for field, value := range map[string]string{"date_from": filter.DateFrom, "date_to": filter.DateTo} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(attendance.DateLayout, value); err != nil {
			return filter, &attendance.ValidationError{Field: field, Message: "must be YYYY-MM-DD"}
		}
	}
	if v := q.Get("include_superseded"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, &attendance.ValidationError{Field: "include_superseded", Message: "must be a boolean"}
		}
		filter.IncludeSuperseded = b
	}
	return filter, nil
}

// List returns stored sessions matching the query filters.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.log, "failed to list sessions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns one stored session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.log, "failed to load session", err)
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// Amend stores a new session superseding the given one with corrections applied.
func (h *SessionsHandler) Amend(w http.ResponseWriter, r *http.Request) {
	var corrections []attendance.Correction
	if err := decodeJSON(r, &corrections); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i := range corrections {
		if err := attendance.ValidateStruct(&corrections[i]); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	id := chi.URLParam(r, "id")
	next, err := database.AmendSession(r.Context(), h.store, id, corrections, h.now())
	if err != nil {
		respondServiceError(w, h.log, "failed to amend session", err)
		return
	}
	h.log.Info("attendance session amended",
		zap.String("session_id", next.ID),
		zap.String("supersedes", sanitizeForLog(id)),
		zap.Int("corrections", len(corrections)),
	)
	respondJSON(w, http.StatusCreated, next)
}

// Delete removes a stored session.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		respondServiceError(w, h.log, "failed to delete session", err)
		return
	}
	h.log.Info("attendance session deleted", zap.String("session_id", sanitizeForLog(id)))
	w.WriteHeader(http.StatusNoContent)
}

// Stats summarizes attendance over the sessions matching the query filters.
func (h *SessionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Statistics count each class once, so superseded sessions never enter.
	filter.IncludeSuperseded = false

	minPercentage := h.minPercentage
	if v := r.URL.Query().Get("min_percentage"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 || p > 100 {
			respondError(w, http.StatusBadRequest, "min_percentage must be a number between 0 and 100")
			return
		}
		minPercentage = p
	}

	sessions, err := h.store.ListSessions(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.log, "failed to list sessions", err)
		return
	}
	respondJSON(w, http.StatusOK, attendance.ComputeStats(sessions, minPercentage))
}
