// Package database owns the SQLite commissioning store: the file the
// daemon persists instrument records into. It opens the file with WAL
// and a busy timeout, pins the pool to SQLite's single-writer model,
// and applies migrations embedded in the binary.
//
// Typical startup sequence:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Repositories take the embedded *sql.DB; this package stays ignorant
// of table shapes beyond its own schema_migrations bookkeeping.
//
// Schema changes ship as .up.sql/.down.sql pairs. Keep them additive
// where possible: new columns nullable or defaulted, no renames after
// a release, so an old binary can still read a new file.
package database
