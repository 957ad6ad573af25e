package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/dupe-janitor/internal/store"
	"github.com/spf13/viper"
)

func TestCheckFFprobe(t *testing.T) {
	result := checkFFprobe()

	// ffprobe is optional: success or warning, never an error
	if result.error {
		t.Errorf("ffprobe check should not error, got: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected a message")
	}
}

func TestCheckFpcalc(t *testing.T) {
	result := checkFpcalc("")
	if result.error {
		t.Errorf("fpcalc check should not error (it's optional), got error: %s", result.message)
	}
}

func TestCheckFpcalc_Missing(t *testing.T) {
	result := checkFpcalc(filepath.Join(t.TempDir(), "no-such-fpcalc"))
	if !result.warning {
		t.Errorf("expected warning for missing fpcalc, got %+v", result)
	}
}

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}
	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckDatabase_NonExistent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nonexistent.db")

	result := checkDatabase(dbPath)

	// Should not error - database will be created on first scan
	if result.error {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Error("check must not create the database")
	}
}

func TestCheckDatabase_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	for i, p := range []string{"/music/a.mp3", "/music/b.mp3"} {
		rec := &store.FileRecord{FileKey: p, Path: p, SizeBytes: int64(1024 * (i + 1))}
		if err := db.UpsertFile(rec); err != nil {
			t.Fatalf("failed to insert test file: %v", err)
		}
	}
	db.Close()

	result := checkDatabase(dbPath)

	if result.error {
		t.Errorf("database check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "2 files, 0 fingerprinted") {
		t.Errorf("expected file counts in message, got %q", result.message)
	}
}

func TestCheckDatabase_Empty(t *testing.T) {
	result := checkDatabase("")

	if !result.warning {
		t.Error("expected warning for empty database path")
	}
}

func TestCheckDatabase_Directory(t *testing.T) {
	result := checkDatabase(t.TempDir())

	if !result.error {
		t.Error("expected error when database path is a directory")
	}
}

func TestCheckMatchConfig(t *testing.T) {
	setDefaults()
	if result := checkMatchConfig(); result.error {
		t.Errorf("default config should be valid: %s", result.message)
	}

	viper.Set("match.min_fields", 0)
	defer viper.Set("match.min_fields", 2)

	if result := checkMatchConfig(); !result.error {
		t.Error("expected error for min_fields 0")
	}
}

func TestCheckLibraryDirectory(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr bool
	}{
		{
			name:    "valid",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantErr: false,
		},
		{
			name:    "non-existent",
			path:    func(t *testing.T) string { return "/nonexistent/path/that/does/not/exist" },
			wantErr: true,
		},
		{
			name: "file",
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "file.txt")
				if err := os.WriteFile(p, []byte("test"), 0644); err != nil {
					t.Fatalf("failed to create test file: %v", err)
				}
				return p
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checkLibraryDirectory(tt.path(t))
			if result.error != tt.wantErr {
				t.Errorf("checkLibraryDirectory() error = %v, want %v (%s)", result.error, tt.wantErr, result.message)
			}
		})
	}
}

func TestCheckEventsDirectory(t *testing.T) {
	dir := t.TempDir()

	if result := checkEventsDirectory(dir); result.error || result.warning {
		t.Errorf("writable directory should pass: %+v", result)
	}

	missing := filepath.Join(dir, "later")
	if result := checkEventsDirectory(missing); result.error {
		t.Errorf("missing directory should pass: %s", result.message)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("check must not create the directory")
	}

	// No probe file is left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}
