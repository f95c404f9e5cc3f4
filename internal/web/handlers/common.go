package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrSessionSuperseded), errors.Is(err, attendance.ErrCommitInProgress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError sends the error with its mapped status. Internal
// errors are logged and hidden from the client.
func respondServiceError(w http.ResponseWriter, log *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}

// decodeJSON decodes a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New(errInvalidRequestBody)
	}
	return nil
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	faceService HealthChecker
}

// NewHealthHandler creates a health handler. faceService may be nil.
func NewHealthHandler(faceService HealthChecker) *HealthHandler {
	return &HealthHandler{faceService: faceService}
}

// Check reports the service status. The face service is probed with a short
// timeout; a failing probe degrades the status but keeps 200 so the API
// stays routable for history and stats.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":       "ok",
		"database":     "unavailable",
		"face_service": "unknown",
	}
	if database.IsInitialized() {
		resp["database"] = "ok"
	}
	if h.faceService != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.faceService.Health(ctx); err != nil {
			resp["status"] = "degraded"
			resp["face_service"] = "unavailable"
		} else {
			resp["face_service"] = "ok"
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
