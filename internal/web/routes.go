package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/rollcall/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.FaceService)

	s.router.Get("/api/v1/health", healthHandler.Check)
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1/attendance", func(r chi.Router) {
		if s.deps.Service != nil {
			draftsHandler := handlers.NewDraftsHandler(s.deps.Service, s.config.Web.MaxUploadMB, s.log)

			r.Post("/drafts", draftsHandler.Create)
			r.Get("/drafts/{id}", draftsHandler.Get)
			r.Put("/drafts/{id}/records/{studentId}", draftsHandler.Correct)
			r.Post("/drafts/{id}/commit", draftsHandler.Commit)
		}

		if s.deps.Sessions != nil {
			sessionsHandler := handlers.NewSessionsHandler(s.deps.Sessions, s.config.Attendance.MinAttendancePercentage, s.log)

			r.Get("/sessions", sessionsHandler.List)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Post("/sessions/{id}/amend", sessionsHandler.Amend)
			r.Delete("/sessions/{id}", sessionsHandler.Delete)
			r.Get("/stats", sessionsHandler.Stats)
		}
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})
}
