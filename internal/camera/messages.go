package camera

import "time"

// HealthStatus represents the operational status of the daemon.
type HealthStatus string

// Health status values published to the retained status topic. The
// broker's last-will mechanism supplies "offline" when the daemon dies
// without publishing a final status itself.
const (
	// HealthOnline means the camera is connected and capturing.
	HealthOnline HealthStatus = "online"

	// HealthDegraded means the daemon is running but something is
	// impaired (broker link down, camera away or degraded).
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline means the daemon is not running.
	HealthOffline HealthStatus = "offline"

	// HealthStarting means the daemon is initialising.
	HealthStarting HealthStatus = "starting"

	// HealthStopping means the daemon is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained daemon status published to
// studiotether/status.
type HealthMessage struct {
	// Daemon is the publishing client's identifier.
	Daemon string `json:"daemon"`

	// Timestamp is when the message was generated.
	Timestamp time.Time `json:"timestamp"`

	// Status is the overall operational status.
	Status HealthStatus `json:"status"`

	// Version is the daemon software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the daemon has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Session describes the device session, if one exists.
	Session *SessionStatus `json:"session,omitempty"`

	// Capture carries capture-loop counters, if a scheduler runs.
	Capture *CaptureStatistics `json:"capture,omitempty"`

	// CacheEntries is the current preview cache population.
	CacheEntries int `json:"cache_entries"`

	// Reason explains a non-online status.
	Reason string `json:"reason,omitempty"`
}

// SessionStatus describes the device session within a health message.
type SessionStatus struct {
	// State is the session state name.
	State string `json:"state"`

	// Adapter is the transport adapter in use.
	Adapter string `json:"adapter"`

	// Connects counts successful device opens since start.
	Connects uint64 `json:"connects"`

	// Losses counts transport losses since start.
	Losses uint64 `json:"losses"`

	// LastActivity is the last successful device operation.
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// CaptureStatistics carries capture-loop counters within a health
// message.
type CaptureStatistics struct {
	// Frames counts sanitised live-view frames delivered.
	Frames uint64 `json:"frames"`

	// FramesDropped counts frames discarded because the consumer fell
	// behind.
	FramesDropped uint64 `json:"frames_dropped"`

	// Downloads counts capture files fetched from the camera.
	Downloads uint64 `json:"downloads"`

	// Retries counts transient device errors that were retried.
	Retries uint64 `json:"retries"`

	// Errors counts all device errors.
	Errors uint64 `json:"errors"`
}

// NewHealthMessage builds a health message from current session and
// scheduler snapshots.
func NewHealthMessage(daemon, version string, status HealthStatus, session SessionStats, sched SchedulerStats, cacheEntries int, startTime time.Time) *HealthMessage {
	msg := &HealthMessage{
		Daemon:        daemon,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		CacheEntries:  cacheEntries,
	}

	if session.Adapter != "" {
		st := &SessionStatus{
			State:    session.State.String(),
			Adapter:  session.Adapter,
			Connects: session.Connects,
			Losses:   session.Losses,
		}
		if !session.LastActivity.IsZero() {
			t := session.LastActivity.UTC()
			st.LastActivity = &t
		}
		msg.Session = st
	}

	msg.Capture = &CaptureStatistics{
		Frames:        sched.Frames,
		FramesDropped: sched.FramesDropped,
		Downloads:     sched.Downloads,
		Retries:       session.Retries,
		Errors:        session.Errors,
	}

	return msg
}

// ConnectionEventMessage announces a session state transition on
// studiotether/event/connection.
type ConnectionEventMessage struct {
	// Daemon is the publishing client's identifier.
	Daemon string `json:"daemon"`

	// Timestamp is when the transition happened.
	Timestamp time.Time `json:"timestamp"`

	// State is the new session state name.
	State string `json:"state"`

	// Connected reports whether device operations are possible.
	Connected bool `json:"connected"`

	// Adapter is the transport adapter in use.
	Adapter string `json:"adapter"`

	// Reason explains the transition, when there is one.
	Reason string `json:"reason,omitempty"`
}

// NewConnectionEventMessage builds a connection event for a transition.
func NewConnectionEventMessage(daemon, adapter string, state ConnectionState, reason string) *ConnectionEventMessage {
	return &ConnectionEventMessage{
		Daemon:    daemon,
		Timestamp: time.Now().UTC(),
		State:     state.String(),
		Connected: state.IsConnected(),
		Adapter:   adapter,
		Reason:    reason,
	}
}

// CaptureEventMessage announces an ingested capture on
// studiotether/event/capture.
type CaptureEventMessage struct {
	// Daemon is the publishing client's identifier.
	Daemon string `json:"daemon"`

	// Timestamp is when the capture was ingested.
	Timestamp time.Time `json:"timestamp"`

	// CaptureID is the logical capture identifier (file name without
	// extension, vendor prefix stripped).
	CaptureID string `json:"capture_id"`

	// FileName is the file as reported by the camera.
	FileName string `json:"file_name"`

	// Kind is "raw" or "companion".
	Kind string `json:"kind"`

	// Bytes is the payload size.
	Bytes int `json:"bytes"`

	// Paired reports whether the capture was matched with its sibling
	// file inside the pairing window.
	Paired bool `json:"paired"`

	// ThumbnailSource names how the preview thumbnail was obtained:
	// "companion", "raw_decode", "embedded", or "none".
	ThumbnailSource string `json:"thumbnail_source,omitempty"`
}
