package monitor

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mkarlberg/studiotether/internal/camera"
)

// frameStore holds the most recent live-view frame for HTTP retrieval.
// Frames arrive from the capture loop faster than any poller reads
// them, so only the latest one is kept.
type frameStore struct {
	mu         sync.RWMutex
	data       []byte
	capturedAt time.Time
}

func (f *frameStore) set(data []byte, capturedAt time.Time) {
	f.mu.Lock()
	f.data = data
	f.capturedAt = capturedAt
	f.mu.Unlock()
}

func (f *frameStore) get() ([]byte, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.data == nil {
		return nil, time.Time{}, false
	}
	return f.data, f.capturedAt, true
}

// UpdateFrame records the latest live-view frame. The frame's bytes are
// owned by the caller's pipeline and already copied out of transport
// memory, so the store keeps the slice as-is.
func (s *Server) UpdateFrame(frame camera.PreviewFrame) {
	s.frame.set(frame.Data, frame.CapturedAt)
}

// handleFrame serves the most recent live-view frame as JPEG bytes.
func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	data, capturedAt, ok := s.frame.get()
	if !ok {
		writeFailure(w, ErrCodeNotFound, "no frame captured yet")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Captured-At", capturedAt.UTC().Format(time.RFC3339Nano))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}
