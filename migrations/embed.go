// Package migrations carries the schema as embedded SQL, so a deployed
// binary can bring its database up to date with no files beside it.
//
// Files pair up as YYYYMMDD_HHMMSS_description.up.sql / .down.sql and
// apply in version order.
package migrations

import (
	"embed"

	"github.com/benchrig/benchrig-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

// The database package walks whatever filesystem is registered here.
// Registering from init keeps database free of a dependency on this
// package, which would otherwise be circular.
func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
