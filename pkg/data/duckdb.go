package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// SchemaVersion is the version the offline store is upgraded to on open.
const SchemaVersion = 1

// migrations[v-1] upgrades a store from version v-1 to v.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS books (
			book_id        VARCHAR PRIMARY KEY,
			title          VARCHAR NOT NULL DEFAULT '',
			author         VARCHAR NOT NULL DEFAULT '',
			cover          VARCHAR NOT NULL DEFAULT '',
			description    VARCHAR NOT NULL DEFAULT '',
			tags           VARCHAR NOT NULL DEFAULT '[]',
			total_chapters INTEGER NOT NULL DEFAULT 0,
			downloaded_at  TIMESTAMP NOT NULL,
			format         VARCHAR NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_books_title ON books (title)`,
		`CREATE INDEX IF NOT EXISTS idx_books_author ON books (author)`,
		`CREATE INDEX IF NOT EXISTS idx_books_downloaded_at ON books (downloaded_at)`,
		`CREATE TABLE IF NOT EXISTS chapters (
			book_id     VARCHAR NOT NULL,
			chapter_id  VARCHAR NOT NULL,
			title       VARCHAR NOT NULL DEFAULT '',
			content     VARCHAR NOT NULL DEFAULT '',
			order_index INTEGER,
			PRIMARY KEY (book_id, chapter_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chapters_book_id ON chapters (book_id)`,
		`CREATE TABLE IF NOT EXISTS progress (
			book_id       VARCHAR PRIMARY KEY,
			chapter_index INTEGER NOT NULL,
			chapter_id    VARCHAR NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)`,
	},
}

// InitDuckDB opens the offline store at path and brings its schema up to
// SchemaVersion. A store written by a newer release fails with
// ErrSchemaVersion and is never touched.
func InitDuckDB(path string) (*sql.DB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := upgrade(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// upgrade runs the version-change hook: every migration above the stored
// version is applied inside one transaction.
func upgrade(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := storedVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("%w: store version %d, supported %d", ErrSchemaVersion, current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade: %w", err)
	}
	defer tx.Rollback()

	for v := current; v < SchemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate to version %d: %w", v+1, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

func storedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT max(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// removeDuckDB deletes the database file and its write-ahead log.
func removeDuckDB(path string) error {
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
