package data

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInitDuckDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := InitDuckDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize DB: %v", err)
	}
	defer db.Close()

	var tableCount int
	err = db.QueryRow(`SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('books', 'chapters', 'progress')`).Scan(&tableCount)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if tableCount != 3 {
		t.Errorf("Expected 3 tables, got %d", tableCount)
	}

	var version int
	if err := db.QueryRow(`SELECT max(version) FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, version)
	}
}

func TestInitDuckDBReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := InitDuckDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize DB: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO progress VALUES ('b1', 3, 'c3', TIMESTAMP '2024-01-01 00:00:00')`); err != nil {
		t.Fatalf("Failed to insert progress: %v", err)
	}
	db.Close()

	db, err = InitDuckDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen DB: %v", err)
	}
	defer db.Close()

	var rows, versions int
	db.QueryRow(`SELECT count(*) FROM progress`).Scan(&rows)
	db.QueryRow(`SELECT count(*) FROM schema_version`).Scan(&versions)
	if rows != 1 {
		t.Errorf("Expected progress row to survive reopen, got %d rows", rows)
	}
	if versions != 1 {
		t.Errorf("Expected a single schema_version row, got %d", versions)
	}
}

func TestInitDuckDBCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := InitDuckDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize DB with nested path: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("DB file was not created")
	}
}

func TestStorageHandleRecreatesGarbageFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "offline.db")
	garbage := make([]byte, 16*1024)
	for i := range garbage {
		garbage[i] = byte('x')
	}
	if err := os.WriteFile(dbPath, garbage, 0o600); err != nil {
		t.Fatalf("Failed to write garbage file: %v", err)
	}

	h := NewStorageHandle(dbPath)
	defer h.Close()

	if !h.IsAvailable() {
		t.Fatal("Expected the store to be recreated and available")
	}
	if h.State() != StateOpen {
		t.Errorf("Expected state open, got %s", h.State())
	}
}

func TestStorageHandleKeepsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "offline.db")

	db, err := InitDuckDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize DB: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO books (book_id, title, downloaded_at) VALUES ('keep', 'Keep Me', TIMESTAMP '2024-01-01 00:00:00')`); err != nil {
		t.Fatalf("Failed to insert book: %v", err)
	}
	if _, err := db.Exec(`UPDATE schema_version SET version = ?`, SchemaVersion+1); err != nil {
		t.Fatalf("Failed to bump schema version: %v", err)
	}
	db.Close()

	if _, err := InitDuckDB(dbPath); !errors.Is(err, ErrSchemaVersion) {
		t.Fatalf("Expected ErrSchemaVersion, got %v", err)
	}

	h := NewStorageHandle(dbPath)
	if h.IsAvailable() {
		t.Fatal("Expected a store from a newer release to be unavailable")
	}
	if h.State() != StateUnavailable {
		t.Errorf("Expected state unavailable, got %s", h.State())
	}
	h.Close()

	raw, err := sql.Open("duckdb", dbPath)
	if err != nil {
		t.Fatalf("Failed to open store directly: %v", err)
	}
	defer raw.Close()

	var books int
	if err := raw.QueryRow(`SELECT count(*) FROM books WHERE book_id = 'keep'`).Scan(&books); err != nil {
		t.Fatalf("Failed to count books: %v", err)
	}
	if books != 1 {
		t.Errorf("Expected the downloaded book to survive, got %d rows", books)
	}
}
