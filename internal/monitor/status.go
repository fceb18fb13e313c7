package monitor

import (
	"net/http"
	"time"
)

// SessionStatus is the session section of the status response.
type SessionStatus struct {
	State          string `json:"state"`
	Connected      bool   `json:"connected"`
	Adapter        string `json:"adapter"`
	FramesCaptured uint64 `json:"frames_captured"`
	Downloads      uint64 `json:"downloads"`
	Retries        uint64 `json:"retries"`
	Errors         uint64 `json:"errors"`
	Connects       uint64 `json:"connects"`
	Losses         uint64 `json:"losses"`
	LastActivity   string `json:"last_activity,omitempty"`
}

// SchedulerStatus is the capture-loop section of the status response.
type SchedulerStatus struct {
	Running            bool   `json:"running"`
	Cycles             uint64 `json:"cycles"`
	Frames             uint64 `json:"frames"`
	FramesDropped      uint64 `json:"frames_dropped"`
	Downloads          uint64 `json:"downloads"`
	CaptureFailures    uint64 `json:"capture_failures"`
	PollFailures       uint64 `json:"poll_failures"`
	CorruptStreak      int32  `json:"corrupt_streak"`
	MinFrameIntervalMS int64  `json:"min_frame_interval_ms"`
}

// IngestStatus is the ingestion section of the status response.
type IngestStatus struct {
	Ingested        uint64 `json:"ingested"`
	Paired          uint64 `json:"paired"`
	Standalone      uint64 `json:"standalone"`
	Expired         uint64 `json:"expired"`
	DecodeFailures  uint64 `json:"decode_failures"`
	DiskFailures    uint64 `json:"disk_failures"`
	PendingRaw      int    `json:"pending_raw"`
	DefaultRotation int    `json:"default_rotation"`
	DownloadDir     string `json:"download_dir"`
}

// CacheStatus is the preview-cache section of the status response.
type CacheStatus struct {
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`
}

// StatusResponse is the full daemon status.
type StatusResponse struct {
	Status           string           `json:"status"`
	Version          string           `json:"version"`
	Session          *SessionStatus   `json:"session,omitempty"`
	Scheduler        *SchedulerStatus `json:"scheduler,omitempty"`
	Ingest           *IngestStatus    `json:"ingest,omitempty"`
	Cache            CacheStatus      `json:"cache"`
	CapturesTotal    int64            `json:"captures_total"`
	WebSocketClients int              `json:"websocket_clients"`
}

// handleStatus returns a point-in-time snapshot of the whole pipeline:
// session state, capture-loop counters, ingest counters, and cache fill.
// Sections for unwired dependencies are omitted rather than zeroed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "ok",
		Version: s.version,
		Cache: CacheStatus{
			Entries:  s.cache.Len(),
			Capacity: s.cache.Capacity(),
		},
	}

	if s.session != nil {
		st := s.session.Stats()
		sess := &SessionStatus{
			State:          st.State.String(),
			Connected:      st.State.IsConnected(),
			Adapter:        st.Adapter,
			FramesCaptured: st.FramesCaptured,
			Downloads:      st.Downloads,
			Retries:        st.Retries,
			Errors:         st.Errors,
			Connects:       st.Connects,
			Losses:         st.Losses,
		}
		if !st.LastActivity.IsZero() {
			sess.LastActivity = st.LastActivity.UTC().Format(time.RFC3339)
		}
		resp.Session = sess
	}

	if s.scheduler != nil {
		st := s.scheduler.Stats()
		resp.Scheduler = &SchedulerStatus{
			Running:            st.Running,
			Cycles:             st.Cycles,
			Frames:             st.Frames,
			FramesDropped:      st.FramesDropped,
			Downloads:          st.Downloads,
			CaptureFailures:    st.CaptureFailures,
			PollFailures:       st.PollFailures,
			CorruptStreak:      st.CorruptStreak,
			MinFrameIntervalMS: st.MinFrameInterval.Milliseconds(),
		}
	}

	if s.ingester != nil {
		st := s.ingester.Stats()
		resp.Ingest = &IngestStatus{
			Ingested:        st.Ingested,
			Paired:          st.Paired,
			Standalone:      st.Standalone,
			Expired:         st.Expired,
			DecodeFailures:  st.DecodeFailures,
			DiskFailures:    st.DiskFailures,
			PendingRaw:      st.PendingRaw,
			DefaultRotation: s.ingester.DefaultRotation(),
			DownloadDir:     s.ingester.DownloadDir(),
		}
	}

	if s.catalog != nil {
		if total, err := s.catalog.CaptureCount(r.Context()); err == nil {
			resp.CapturesTotal = total
		}
	}

	if s.hub != nil {
		resp.WebSocketClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}
