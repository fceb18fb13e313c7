// Package migrations carries the catalog schema as embedded SQL, so a
// deployed tetherd binary never depends on loose migration files.
//
// Importing this package for side effects is enough: init hands the
// embedded filesystem to the database package, which reads and applies
// the files during startup.
package migrations

import (
	"embed"

	"github.com/mkarlberg/studiotether/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files sit at the embed root
}
