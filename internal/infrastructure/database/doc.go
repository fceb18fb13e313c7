// Package database owns the daemon's SQLite catalog file: opening it with
// the right pragmas, migrating its schema, and checking its pulse.
//
// The capture catalog is a classic single-writer workload. Ingestion
// appends rows; the monitor API reads them. WAL journaling lets those
// overlap, and the pool is pinned to one connection so SQLite's lock
// model never surfaces as SQLITE_BUSY in application code.
//
// Schema changes ship as embedded SQL file pairs named
//
//	YYYYMMDD_HHMMSS_description.up.sql
//	YYYYMMDD_HHMMSS_description.down.sql
//
// and are applied in version order by Migrate, one transaction per
// migration. The migrations package wires its embedded files into
// MigrationsFS at init, so the binary is self-contained. Keep changes
// additive (nullable or defaulted columns, no drops or renames) so a
// rollback is always safe.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
