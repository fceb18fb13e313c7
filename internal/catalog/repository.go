package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Repository defines the persistence operations for the capture catalog
// and the session event log. The abstraction keeps the monitor API and
// the daemon wiring testable without a real database.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordCapture inserts a capture row. A missing ID is generated;
	// a missing ingest timestamp defaults to now.
	RecordCapture(ctx context.Context, capture *Capture) error

	// GetCapture returns the newest capture row for a logical ID.
	// Returns ErrCaptureNotFound when the ID was never catalogued.
	GetCapture(ctx context.Context, logicalID string) (*Capture, error)

	// ListCaptures returns recent captures, newest first
	// (default 50, max 200).
	ListCaptures(ctx context.Context, limit int) ([]Capture, error)

	// CaptureCount returns the total number of capture rows.
	CaptureCount(ctx context.Context) (int64, error)

	// RecordSessionEvent appends a connection state transition.
	RecordSessionEvent(ctx context.Context, state, reason string) error

	// ListSessionEvents returns recent transitions, newest first
	// (default 50, max 200).
	ListSessionEvents(ctx context.Context, limit int) ([]SessionEvent, error)

	// PruneSessionEvents deletes events older than the given duration,
	// returning the number of rows removed.
	PruneSessionEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordCapture inserts a capture row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - capture: Row to persist; ID, DecodeStatus and IngestedAt are
//     defaulted in place when empty
//
// Returns:
//   - error: ErrInvalidCapture on validation failure, otherwise the
//     underlying database error
func (r *SQLiteRepository) RecordCapture(ctx context.Context, capture *Capture) error {
	if capture == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCapture)
	}
	if capture.LogicalID == "" {
		return fmt.Errorf("%w: logical id is required", ErrInvalidCapture)
	}
	if capture.ID == "" {
		capture.ID = uuid.New().String()
	}
	if capture.DecodeStatus == "" {
		capture.DecodeStatus = DecodeStatusOK
	}
	if capture.IngestedAt.IsZero() {
		capture.IngestedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO captures (id, logical_id, source_kind, raw_file, companion_file,
			thumbnail_bytes, rotation, decode_status, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		capture.ID,
		capture.LogicalID,
		capture.SourceKind,
		sql.NullString{String: capture.RawFile, Valid: capture.RawFile != ""},
		sql.NullString{String: capture.CompanionFile, Valid: capture.CompanionFile != ""},
		capture.ThumbnailBytes,
		capture.Rotation,
		capture.DecodeStatus,
		capture.IngestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting capture: %w", err)
	}
	return nil
}

// GetCapture returns the newest capture row for a logical ID.
// Same-second rows resolve by insertion order via rowid.
func (r *SQLiteRepository) GetCapture(ctx context.Context, logicalID string) (*Capture, error) {
	if logicalID == "" {
		return nil, fmt.Errorf("%w: logical id is required", ErrInvalidCapture)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, logical_id, source_kind, raw_file, companion_file,
			thumbnail_bytes, rotation, decode_status, ingested_at
		 FROM captures
		 WHERE logical_id = ?
		 ORDER BY ingested_at DESC, rowid DESC
		 LIMIT 1`,
		logicalID,
	)

	capture, err := scanCapture(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaptureNotFound
		}
		return nil, fmt.Errorf("querying capture: %w", err)
	}
	return capture, nil
}

// ListCaptures returns recent captures, newest first.
func (r *SQLiteRepository) ListCaptures(ctx context.Context, limit int) ([]Capture, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, logical_id, source_kind, raw_file, companion_file,
			thumbnail_bytes, rotation, decode_status, ingested_at
		 FROM captures
		 ORDER BY ingested_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying captures: %w", err)
	}
	defer rows.Close()

	captures := make([]Capture, 0, limit)
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning capture: %w", err)
		}
		captures = append(captures, *capture)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating captures: %w", err)
	}
	return captures, nil
}

// CaptureCount returns the total number of capture rows.
func (r *SQLiteRepository) CaptureCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captures").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting captures: %w", err)
	}
	return count, nil
}

// RecordSessionEvent appends a connection state transition.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - state: Connection state entered (required)
//   - reason: Trigger description, may be empty
//
// Returns:
//   - error: ErrInvalidEvent when state is empty, otherwise the
//     underlying database error
func (r *SQLiteRepository) RecordSessionEvent(ctx context.Context, state, reason string) error {
	if state == "" {
		return fmt.Errorf("%w: state is required", ErrInvalidEvent)
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO session_events (state, reason, occurred_at) VALUES (?, ?, ?)",
		state,
		reason,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}
	return nil
}

// ListSessionEvents returns recent transitions, newest first.
func (r *SQLiteRepository) ListSessionEvents(ctx context.Context, limit int) ([]SessionEvent, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, state, reason, occurred_at
		 FROM session_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	events := make([]SessionEvent, 0, limit)
	for rows.Next() {
		var event SessionEvent
		var occurredAt string

		if err := rows.Scan(&event.ID, &event.State, &event.Reason, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}

		timestamp, err := parseTimestamp(occurredAt)
		if err != nil {
			return nil, err
		}
		event.OccurredAt = timestamp

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}
	return events, nil
}

// PruneSessionEvents deletes events older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (events older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) PruneSessionEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM session_events WHERE occurred_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting session events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*Capture, error) {
	var capture Capture
	var rawFile, companionFile sql.NullString
	var ingestedAt string

	if err := row.Scan(
		&capture.ID,
		&capture.LogicalID,
		&capture.SourceKind,
		&rawFile,
		&companionFile,
		&capture.ThumbnailBytes,
		&capture.Rotation,
		&capture.DecodeStatus,
		&ingestedAt,
	); err != nil {
		return nil, err
	}

	capture.RawFile = rawFile.String
	capture.CompanionFile = companionFile.String

	timestamp, err := parseTimestamp(ingestedAt)
	if err != nil {
		return nil, err
	}
	capture.IngestedAt = timestamp

	return &capture, nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
