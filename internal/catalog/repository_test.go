package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the catalog schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE captures (
			id TEXT PRIMARY KEY,
			logical_id TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			raw_file TEXT,
			companion_file TEXT,
			thumbnail_bytes INTEGER NOT NULL DEFAULT 0,
			rotation INTEGER NOT NULL DEFAULT 0,
			decode_status TEXT NOT NULL DEFAULT 'ok',
			ingested_at TEXT NOT NULL
		);
		CREATE INDEX idx_captures_logical_id ON captures(logical_id);
		CREATE INDEX idx_captures_ingested_at ON captures(ingested_at);

		CREATE TABLE session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			state TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			occurred_at TEXT NOT NULL
		);
		CREATE INDEX idx_session_events_occurred_at ON session_events(occurred_at);
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	return NewSQLiteRepository(setupTestDB(t))
}

// ─── Capture Tests ─────────────────────────────────────────────────

func TestRecordCapture_Defaults(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	capture := &Capture{
		LogicalID:      "0001",
		SourceKind:     "paired",
		RawFile:        "0001.arw",
		CompanionFile:  "0001.jpg",
		ThumbnailBytes: 2048,
		Rotation:       90,
	}
	if err := repo.RecordCapture(ctx, capture); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}

	if capture.ID == "" {
		t.Error("expected ID to be generated")
	}
	if capture.DecodeStatus != DecodeStatusOK {
		t.Errorf("DecodeStatus = %q, want %q", capture.DecodeStatus, DecodeStatusOK)
	}
	if capture.IngestedAt.IsZero() {
		t.Error("expected IngestedAt to be defaulted")
	}

	got, err := repo.GetCapture(ctx, "0001")
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if got.ID != capture.ID {
		t.Errorf("ID = %q, want %q", got.ID, capture.ID)
	}
	if got.SourceKind != "paired" {
		t.Errorf("SourceKind = %q, want paired", got.SourceKind)
	}
	if got.RawFile != "0001.arw" || got.CompanionFile != "0001.jpg" {
		t.Errorf("files = %q/%q, want 0001.arw/0001.jpg", got.RawFile, got.CompanionFile)
	}
	if got.ThumbnailBytes != 2048 {
		t.Errorf("ThumbnailBytes = %d, want 2048", got.ThumbnailBytes)
	}
	if got.Rotation != 90 {
		t.Errorf("Rotation = %d, want 90", got.Rotation)
	}
}

func TestRecordCapture_Validation(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.RecordCapture(ctx, nil); !errors.Is(err, ErrInvalidCapture) {
		t.Errorf("nil capture error = %v, want ErrInvalidCapture", err)
	}
	if err := repo.RecordCapture(ctx, &Capture{SourceKind: "raw"}); !errors.Is(err, ErrInvalidCapture) {
		t.Errorf("missing logical id error = %v, want ErrInvalidCapture", err)
	}
}

func TestRecordCapture_EmptyFilesStoredAsNull(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	// A standalone RAW has no companion file.
	if err := repo.RecordCapture(ctx, &Capture{
		LogicalID:  "0002",
		SourceKind: "raw",
		RawFile:    "0002.arw",
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}

	got, err := repo.GetCapture(ctx, "0002")
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if got.CompanionFile != "" {
		t.Errorf("CompanionFile = %q, want empty", got.CompanionFile)
	}
}

func TestGetCapture_NewestWins(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	older := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	newer := older.Add(5 * time.Second)

	// Same logical ID ingested twice: standalone companion first, the
	// paired upgrade after.
	if err := repo.RecordCapture(ctx, &Capture{
		LogicalID: "0003", SourceKind: "companion", IngestedAt: older,
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if err := repo.RecordCapture(ctx, &Capture{
		LogicalID: "0003", SourceKind: "paired", IngestedAt: newer,
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}

	got, err := repo.GetCapture(ctx, "0003")
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if got.SourceKind != "paired" {
		t.Errorf("SourceKind = %q, want paired (newest row)", got.SourceKind)
	}
}

func TestGetCapture_SameSecondResolvesByInsertOrder(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	stamp := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if err := repo.RecordCapture(ctx, &Capture{
		LogicalID: "0004", SourceKind: "companion", IngestedAt: stamp,
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}
	if err := repo.RecordCapture(ctx, &Capture{
		LogicalID: "0004", SourceKind: "paired", IngestedAt: stamp,
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}

	got, err := repo.GetCapture(ctx, "0004")
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if got.SourceKind != "paired" {
		t.Errorf("SourceKind = %q, want paired (later insert)", got.SourceKind)
	}
}

func TestGetCapture_NotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetCapture(context.Background(), "nonexistent")
	if !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("error = %v, want ErrCaptureNotFound", err)
	}
}

func TestListCaptures_NewestFirst(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := repo.RecordCapture(ctx, &Capture{
			LogicalID:  id,
			SourceKind: "companion",
			IngestedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("RecordCapture %s: %v", id, err)
		}
	}

	captures, err := repo.ListCaptures(ctx, 0)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}

	wantOrder := []string{"c", "b", "a"}
	if len(captures) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(captures), len(wantOrder))
	}
	for i, want := range wantOrder {
		if captures[i].LogicalID != want {
			t.Errorf("captures[%d] = %q, want %q", i, captures[i].LogicalID, want)
		}
	}
}

func TestListCaptures_LimitApplied(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := repo.RecordCapture(ctx, &Capture{
			LogicalID:  string(rune('a' + i)),
			SourceKind: "companion",
			IngestedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("RecordCapture: %v", err)
		}
	}

	captures, err := repo.ListCaptures(ctx, 2)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("len = %d, want 2", len(captures))
	}
	if captures[0].LogicalID != "e" || captures[1].LogicalID != "d" {
		t.Errorf("got %q, %q; want the two newest e, d", captures[0].LogicalID, captures[1].LogicalID)
	}

	// Oversized limits are clamped, not rejected.
	if _, err := repo.ListCaptures(ctx, 100000); err != nil {
		t.Errorf("ListCaptures with huge limit: %v", err)
	}
}

func TestCaptureCount(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	count, err := repo.CaptureCount(ctx)
	if err != nil {
		t.Fatalf("CaptureCount: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	for _, id := range []string{"a", "b"} {
		if err := repo.RecordCapture(ctx, &Capture{LogicalID: id, SourceKind: "raw"}); err != nil {
			t.Fatalf("RecordCapture: %v", err)
		}
	}

	count, err = repo.CaptureCount(ctx)
	if err != nil {
		t.Fatalf("CaptureCount: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestRecordCapture_FailedDecode(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.RecordCapture(ctx, &Capture{
		LogicalID:    "0005",
		SourceKind:   "raw",
		DecodeStatus: DecodeStatusFailed,
	}); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}

	got, err := repo.GetCapture(ctx, "0005")
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if got.DecodeStatus != DecodeStatusFailed {
		t.Errorf("DecodeStatus = %q, want %q", got.DecodeStatus, DecodeStatusFailed)
	}
	if got.ThumbnailBytes != 0 {
		t.Errorf("ThumbnailBytes = %d, want 0", got.ThumbnailBytes)
	}
}

// ─── Session Event Tests ───────────────────────────────────────────

func TestSessionEvents_RecordAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.RecordSessionEvent(ctx, "connected", ""); err != nil {
		t.Fatalf("RecordSessionEvent: %v", err)
	}
	if err := repo.RecordSessionEvent(ctx, "degraded", "corrupt frame streak"); err != nil {
		t.Fatalf("RecordSessionEvent: %v", err)
	}
	if err := repo.RecordSessionEvent(ctx, "lost", "transport lost: code -52"); err != nil {
		t.Fatalf("RecordSessionEvent: %v", err)
	}

	events, err := repo.ListSessionEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessionEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}

	// Newest first; same-second ordering falls back to the
	// auto-increment ID.
	wantStates := []string{"lost", "degraded", "connected"}
	for i, want := range wantStates {
		if events[i].State != want {
			t.Errorf("events[%d].State = %q, want %q", i, events[i].State, want)
		}
	}
	if events[0].Reason != "transport lost: code -52" {
		t.Errorf("Reason = %q, want transport lost reason", events[0].Reason)
	}
	if events[2].Reason != "" {
		t.Errorf("Reason = %q, want empty", events[2].Reason)
	}
	for _, e := range events {
		if e.OccurredAt.IsZero() {
			t.Errorf("event %d has zero OccurredAt", e.ID)
		}
	}
}

func TestRecordSessionEvent_RequiresState(t *testing.T) {
	repo := testRepo(t)

	err := repo.RecordSessionEvent(context.Background(), "", "reason")
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("error = %v, want ErrInvalidEvent", err)
	}
}

func TestListSessionEvents_Limit(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.RecordSessionEvent(ctx, "connected", ""); err != nil {
			t.Fatalf("RecordSessionEvent: %v", err)
		}
	}

	events, err := repo.ListSessionEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessionEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len = %d, want 2", len(events))
	}
}

func TestPruneSessionEvents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// One old event inserted directly, one fresh through the API.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(
		"INSERT INTO session_events (state, reason, occurred_at) VALUES (?, ?, ?)",
		"connected", "", old,
	); err != nil {
		t.Fatalf("insert old event: %v", err)
	}
	if err := repo.RecordSessionEvent(ctx, "lost", "cable pulled"); err != nil {
		t.Fatalf("RecordSessionEvent: %v", err)
	}

	deleted, err := repo.PruneSessionEvents(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneSessionEvents: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	events, err := repo.ListSessionEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessionEvents: %v", err)
	}
	if len(events) != 1 || events[0].State != "lost" {
		t.Errorf("surviving events = %+v, want the fresh lost event", events)
	}
}

func TestPruneSessionEvents_RejectsNonPositive(t *testing.T) {
	repo := testRepo(t)

	if _, err := repo.PruneSessionEvents(context.Background(), 0); err == nil {
		t.Error("expected error for zero duration")
	}
	if _, err := repo.PruneSessionEvents(context.Background(), -time.Hour); err == nil {
		t.Error("expected error for negative duration")
	}
}
