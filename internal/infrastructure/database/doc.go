// Package database provides SQLite database connectivity for Gray Logic RF.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations registered from an fs.FS
//   - Connection lifecycle and health checks
//
// The RF service stores its paired devices (rf_devices) and the frame
// recorder's per-address counters (rf_frames) here.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or have DEFAULT
// values, and each migration ships an .up.sql and a .down.sql file.
package database
