package monitor

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the middleware chain and the /api/v1 surface.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDs)
	r.Use(accessLog(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(corsPolicy(s.cfg.CORS))
	r.Use(bodyCap)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Preview cache browsing and navigation
		r.Route("/previews", func(r chi.Router) {
			r.Get("/", s.handleListPreviews)
			r.Get("/current", s.handleCurrentPreview)
			r.Post("/navigate", s.handleNavigate)
			r.Get("/{id}", s.handleGetPreview)
		})

		// Capture catalog
		r.Route("/captures", func(r chi.Router) {
			r.Get("/", s.handleListCaptures)
			r.Get("/{id}", s.handleGetCapture)
		})

		// Session transition history
		r.Get("/session/events", s.handleListSessionEvents)

		// Latest live-view frame
		r.Get("/frame", s.handleFrame)

		// Runtime settings
		r.Route("/settings", func(r chi.Router) {
			r.Put("/rotation", s.handleSetRotation)
			r.Put("/interval", s.handleSetInterval)
		})

		// WebSocket event feed
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath returns the configured WebSocket path relative to /api/v1.
func (s *Server) wsPath() string {
	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
