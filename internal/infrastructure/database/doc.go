// Package database opens the relay's SQLite state database and applies its
// schema migrations.
//
// The database is small and written once per processed message, so it runs
// with a single connection in WAL mode and a busy timeout.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are embedded by the migrations package and named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql.
package database
