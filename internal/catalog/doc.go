// Package catalog persists the shoot record for StudioTether.
//
// Two tables back it: captures, one row per ingest outcome so the
// operator can see what landed (and what failed to decode) across
// restarts, and session_events, the audit trail of camera connection
// transitions. Both are served read-only through the monitor API;
// writers are the ingest result callback and the session status
// listener in the daemon wiring.
//
// Capture rows are insert-only. A logical ID re-ingested after a
// restart, or upgraded when its RAW half arrives late, gets a fresh row;
// GetCapture resolves to the newest one. History stays queryable.
//
// # Usage
//
//	repo := catalog.NewSQLiteRepository(db.DB)
//
//	err := repo.RecordCapture(ctx, &catalog.Capture{
//	    LogicalID:      "0042",
//	    SourceKind:     "paired",
//	    RawFile:        "0042.arw",
//	    CompanionFile:  "0042.jpg",
//	    ThumbnailBytes: 184320,
//	    Rotation:       90,
//	})
//
//	captures, _ := repo.ListCaptures(ctx, 50)
//	events, _ := repo.ListSessionEvents(ctx, 50)
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use; it holds no state beyond
// the *sql.DB handle, which serialises access itself.
package catalog
