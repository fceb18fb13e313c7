package monitor

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkarlberg/studiotether/internal/catalog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// handleListCaptures returns recent capture rows, newest first.
func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeFailure(w, ErrCodeUnavailable, "capture catalog unavailable")
		return
	}

	limit, err := parseListLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeFailure(w, ErrCodeBadRequest, err.Error())
		return
	}

	captures, err := s.catalog.ListCaptures(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list captures", "error", err)
		writeFailure(w, ErrCodeInternal, "failed to list captures")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"captures": captures,
		"count":    len(captures),
	})
}

// handleGetCapture returns the newest capture row for a logical ID.
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeFailure(w, ErrCodeUnavailable, "capture catalog unavailable")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxLogicalIDLen {
		writeFailure(w, ErrCodeBadRequest, "invalid capture ID")
		return
	}

	capture, err := s.catalog.GetCapture(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrCaptureNotFound) {
			writeFailure(w, ErrCodeNotFound, "capture not found")
			return
		}
		s.logger.Error("failed to get capture", "logical_id", id, "error", err)
		writeFailure(w, ErrCodeInternal, "failed to get capture")
		return
	}

	writeJSON(w, http.StatusOK, capture)
}

// handleListSessionEvents returns recent connection transitions, newest
// first.
func (s *Server) handleListSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeFailure(w, ErrCodeUnavailable, "capture catalog unavailable")
		return
	}

	limit, err := parseListLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeFailure(w, ErrCodeBadRequest, err.Error())
		return
	}

	events, err := s.catalog.ListSessionEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list session events", "error", err)
		writeFailure(w, ErrCodeInternal, "failed to list session events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// parseListLimit parses the optional limit query parameter. Zero means
// the repository default; the repository clamps oversized values.
func parseListLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
