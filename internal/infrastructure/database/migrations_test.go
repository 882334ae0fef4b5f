package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// useTestMigrations registers an in-memory migration set for the duration of
// the test.
func useTestMigrations(t *testing.T) {
	t.Helper()
	fsys := fstest.MapFS{
		"sql/20260301_090000_radios.up.sql": {Data: []byte(
			"CREATE TABLE test_radios (id TEXT PRIMARY KEY, signal TEXT NOT NULL);")},
		"sql/20260301_090000_radios.down.sql": {Data: []byte(
			"DROP TABLE test_radios;")},
		"sql/20260302_100000_frames.up.sql": {Data: []byte(
			"CREATE TABLE test_frames (id INTEGER PRIMARY KEY, payload TEXT);")},
		"sql/readme.txt": {Data: []byte("ignored")},
	}
	RegisterMigrations(fsys, "sql")
	t.Cleanup(func() { RegisterMigrations(nil, "") })
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_radios") || !tableExists(t, db, "test_frames") {
		t.Fatal("migrations did not create tables")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d; want 2, 0", len(applied), len(pending))
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil || version != "20260302_100000" {
		t.Errorf("SchemaVersion() = (%q, %v)", version, err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The latest migration has no down file.
	if err := db.MigrateDown(ctx); err == nil {
		t.Fatal("MigrateDown() without down SQL should fail")
	}

	if _, err := db.ExecContext(ctx, "DROP TABLE test_frames"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", "20260302_100000"); err != nil {
		t.Fatal(err)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_radios") {
		t.Error("table test_radios should have been dropped")
	}
	if v, _ := db.SchemaVersion(ctx); v != "" {
		t.Errorf("SchemaVersion() after rollback = %q, want empty", v)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	RegisterMigrations(nil, "")
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestGetMigrationStatusPending(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.createMigrationsTable(ctx); err != nil {
		t.Fatalf("createMigrationsTable() error = %v", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 2 {
		t.Errorf("applied = %d, pending = %d; want 0, 2", len(applied), len(pending))
	}
	if pending[0].Name != "radios" || pending[0].DownSQL == "" {
		t.Errorf("pending[0] = %+v", pending[0])
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20260301_090000_rf_devices.up.sql", "20260301_090000", true, true},
		{"20260301_090000_rf_devices.down.sql", "20260301_090000", false, true},
		{"readme.txt", "", false, false},
		{"20260301_090000_rf_devices.sql", "", false, false},
		{"invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_090000_rf_devices.up.sql", "rf_devices"},
		{"20260302_100000_rf_frames.down.sql", "rf_frames"},
	}
	for _, tt := range tests {
		if got := extractMigrationName(tt.filename); got != tt.want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
