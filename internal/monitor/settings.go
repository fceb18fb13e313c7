package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mkarlberg/studiotether/internal/preview"
)

// RotationRequest sets the default rotation baked into previews whose
// files carry no orientation metadata.
type RotationRequest struct {
	Degrees int `json:"degrees"`
}

// IntervalRequest sets the minimum spacing between live-view captures.
type IntervalRequest struct {
	MS int `json:"ms"`
}

// handleSetRotation updates the ingester's default rotation. Applies to
// previews ingested from now on; cached entries keep their baked
// rotation.
func (s *Server) handleSetRotation(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeFailure(w, ErrCodeUnavailable, "ingest pipeline unavailable")
		return
	}

	var req RotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if !preview.ValidRotation(req.Degrees) {
		writeFailure(w, ErrCodeValidation,
			"degrees must be 0, 90, 180 or 270")
		return
	}

	if err := s.ingester.SetDefaultRotation(req.Degrees); err != nil {
		writeFailure(w, ErrCodeBadRequest, err.Error())
		return
	}

	s.logger.Info("default rotation updated", "degrees", req.Degrees)
	writeJSON(w, http.StatusOK, map[string]any{
		"degrees": req.Degrees,
	})
}

// handleSetInterval updates the scheduler's minimum frame interval.
func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeFailure(w, ErrCodeUnavailable, "capture scheduler unavailable")
		return
	}

	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if req.MS < 1 {
		writeFailure(w, ErrCodeValidation,
			"ms must be a positive integer")
		return
	}

	if err := s.scheduler.SetMinFrameInterval(time.Duration(req.MS) * time.Millisecond); err != nil {
		writeFailure(w, ErrCodeBadRequest, err.Error())
		return
	}

	s.logger.Info("frame interval updated", "ms", req.MS)
	writeJSON(w, http.StatusOK, map[string]any{
		"ms": req.MS,
	})
}
