package monitor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkarlberg/studiotether/internal/preview"
)

// maxLogicalIDLen limits path parameter length to prevent abuse via
// oversized URL params.
const maxLogicalIDLen = 255

// NavigateRequest selects a navigation direction for the preview cursor.
type NavigateRequest struct {
	Direction string `json:"direction"`
}

// handleListPreviews returns metadata for every cached preview in
// navigation order.
func (s *Server) handleListPreviews(w http.ResponseWriter, _ *http.Request) {
	metas := s.cache.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"previews": metas,
		"count":    len(metas),
		"capacity": s.cache.Capacity(),
	})
}

// handleCurrentPreview serves the JPEG bytes of the cursor target.
func (s *Server) handleCurrentPreview(w http.ResponseWriter, _ *http.Request) {
	entry, ok := s.cache.Current()
	if !ok {
		writeFailure(w, ErrCodeNotFound, "preview cache is empty")
		return
	}
	serveThumbnail(w, entry)
}

// handleGetPreview serves the JPEG bytes of one cached preview by
// logical ID.
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxLogicalIDLen {
		writeFailure(w, ErrCodeBadRequest, "invalid preview ID")
		return
	}

	entry, ok := s.cache.Get(id)
	if !ok {
		writeFailure(w, ErrCodeNotFound, "preview not found")
		return
	}
	serveThumbnail(w, entry)
}

// handleNavigate moves the preview cursor and returns the new current
// entry's metadata. Directions: "next", "previous", "latest". At a
// boundary the cursor stays put and the same entry is returned.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var (
		entry preview.Entry
		ok    bool
	)
	switch req.Direction {
	case "next":
		entry, ok = s.cache.Next()
	case "previous":
		entry, ok = s.cache.Previous()
	case "latest":
		entry, ok = s.cache.Latest()
	default:
		writeFailure(w, ErrCodeValidation,
			`direction must be "next", "previous" or "latest"`)
		return
	}

	if !ok {
		writeFailure(w, ErrCodeNotFound, "preview cache is empty")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"direction":        req.Direction,
		"logical_id":       entry.LogicalID,
		"source":           entry.Source.String(),
		"rotation_degrees": entry.RotationDegrees,
		"insertion_seq":    entry.InsertionSeq,
		"bytes":            len(entry.Thumbnail),
	})
}

// serveThumbnail writes a cache entry's JPEG bytes with identifying
// headers so callers know which entry they received.
func serveThumbnail(w http.ResponseWriter, entry preview.Entry) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Thumbnail)))
	w.Header().Set("X-Logical-ID", entry.LogicalID)
	w.Header().Set("X-Source", entry.Source.String())
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(entry.Thumbnail)
}
