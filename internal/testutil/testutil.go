package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
)

// TempDB creates a temporary migrated SQLite database for testing
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	// Create temp directory
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	// Initialize database
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Clean up on test completion
	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// TempDir creates a temporary directory for testing
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}

// Row builds a domain.Row from alternating key/value pairs.
func Row(kv ...string) domain.Row {
	row := make(domain.Row, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		row[kv[i]] = kv[i+1]
	}
	return row
}

// CSV joins a header and records into CSV text with a trailing newline.
func CSV(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}
