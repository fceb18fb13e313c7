package catalog

import "time"

// Decode status values recorded on a capture row.
const (
	// DecodeStatusOK marks a capture that produced a preview entry.
	DecodeStatusOK = "ok"

	// DecodeStatusFailed marks a capture whose thumbnail could not be
	// resolved by any avenue. The row keeps the shoot record complete
	// even though there is nothing to display.
	DecodeStatusFailed = "failed"
)

// Capture is one catalogued ingest outcome.
//
// Rows are insert-only: a capture re-ingested after a restart, or
// upgraded when its RAW half arrives late, gets a fresh row and the
// newest row for a logical ID wins. The older rows remain as the shoot's
// ingest history.
type Capture struct {
	// ID is the row's unique identifier (UUID, generated on insert).
	ID string `json:"id"`

	// LogicalID is the capture's base identifier, shared by a
	// RAW/companion pair (file name without extension).
	LogicalID string `json:"logical_id"`

	// SourceKind records how the preview was obtained (raw, companion,
	// paired).
	SourceKind string `json:"source_kind"`

	// RawFile is the spooled RAW file name, when one was seen.
	RawFile string `json:"raw_file,omitempty"`

	// CompanionFile is the spooled companion JPEG name, when one was
	// seen.
	CompanionFile string `json:"companion_file,omitempty"`

	// ThumbnailBytes is the cached preview payload size.
	ThumbnailBytes int `json:"thumbnail_bytes"`

	// Rotation is the clockwise rotation baked into the preview.
	Rotation int `json:"rotation"`

	// DecodeStatus is ok or failed.
	DecodeStatus string `json:"decode_status"`

	// IngestedAt is when the pipeline processed the capture (UTC).
	IngestedAt time.Time `json:"ingested_at"`
}

// SessionEvent is one camera connection state transition.
//
// The event log is the local audit trail of the tether link: every
// connect, degrade, loss and recovery lands here with its reason, so a
// flaky cable shows up as a pattern rather than an anecdote.
type SessionEvent struct {
	// ID is the auto-incremented primary key for the event row.
	ID int64 `json:"id"`

	// State is the connection state entered (connected, degraded,
	// lost, ...).
	State string `json:"state"`

	// Reason is the trigger description, empty for routine transitions.
	Reason string `json:"reason,omitempty"`

	// OccurredAt is the transition timestamp (UTC).
	OccurredAt time.Time `json:"occurred_at"`
}
