package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Repository is the offline store for books, chapters and progress. It
// reports every failure; the degrade policy belongs to its callers.
type Repository struct {
	handle *StorageHandle
	now    func() time.Time
}

func NewRepository(handle *StorageHandle) *Repository {
	return &Repository{handle: handle, now: time.Now}
}

func (r *Repository) Handle() *StorageHandle {
	return r.handle
}

func (r *Repository) db() (*sql.DB, error) {
	return r.handle.GetOrOpen()
}

// check hands runtime errors to the handle so a corrupt store is recreated.
func (r *Repository) check(err error) error {
	if err != nil {
		r.handle.Fail(err)
	}
	return err
}

// SaveBook writes a book and all of its chapters in one transaction,
// replacing any earlier download of the same book. A chapter without an
// order index gets its position in chapters.
func (r *Repository) SaveBook(ctx context.Context, book *Book, chapters []*Chapter) error {
	if book == nil || strings.TrimSpace(book.ID) == "" {
		return fmt.Errorf("book id is required")
	}

	db, err := r.db()
	if err != nil {
		return err
	}

	tags, err := json.Marshal(book.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	downloadedAt := book.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = r.now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return r.check(fmt.Errorf("begin download: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE book_id = ?`, book.ID); err != nil {
		return r.check(fmt.Errorf("clear previous chapters: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, book.ID); err != nil {
		return r.check(fmt.Errorf("clear previous book: %w", err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO books (book_id, title, author, cover, description, tags, total_chapters, downloaded_at, format)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.Cover, book.Description, string(tags),
		book.TotalChapters, downloadedAt.UTC(), book.Format,
	)
	if err != nil {
		return r.check(fmt.Errorf("save book: %w", err))
	}

	for i, ch := range chapters {
		if ch == nil || strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("chapter %d: chapter id is required", i)
		}
		order := i
		if ch.OrderIndex != nil {
			order = *ch.OrderIndex
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chapters (book_id, chapter_id, title, content, order_index)
			VALUES (?, ?, ?, ?, ?)`,
			book.ID, ch.ID, ch.Title, ch.Content, order,
		)
		if err != nil {
			return r.check(fmt.Errorf("save chapter %s: %w", ch.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return r.check(fmt.Errorf("commit download: %w", err))
	}
	return nil
}

const bookColumns = `book_id, title, author, cover, description, tags, total_chapters, downloaded_at, format`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var (
		b    Book
		tags string
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Description, &tags, &b.TotalChapters, &b.DownloadedAt, &b.Format); err != nil {
		return nil, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", b.ID, err)
		}
	}
	return &b, nil
}

// ListBooks returns every downloaded book, most recent first.
func (r *Repository) ListBooks(ctx context.Context) ([]*Book, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY downloaded_at DESC, book_id`)
	if err != nil {
		return nil, r.check(fmt.Errorf("list books: %w", err))
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, r.check(fmt.Errorf("scan book: %w", err))
		}
		books = append(books, b)
	}
	return books, r.check(rows.Err())
}

// GetBook returns nil without an error when the book is not stored.
func (r *Repository) GetBook(ctx context.Context, id string) (*Book, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	b, err := scanBook(db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE book_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.check(fmt.Errorf("get book %s: %w", id, err))
	}
	return b, nil
}

func (r *Repository) HasBook(ctx context.Context, id string) (bool, error) {
	db, err := r.db()
	if err != nil {
		return false, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM books WHERE book_id = ?`, id).Scan(&n); err != nil {
		return false, r.check(fmt.Errorf("check book %s: %w", id, err))
	}
	return n > 0, nil
}

func scanChapter(row interface{ Scan(...any) error }) (*Chapter, error) {
	var (
		ch    Chapter
		order sql.NullInt64
	)
	if err := row.Scan(&ch.BookID, &ch.ID, &ch.Title, &ch.Content, &order); err != nil {
		return nil, err
	}
	if order.Valid {
		idx := int(order.Int64)
		ch.OrderIndex = &idx
	}
	return &ch, nil
}

// GetChapters returns the chapters of a book in reading order.
func (r *Repository) GetChapters(ctx context.Context, bookID string) ([]*Chapter, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT book_id, chapter_id, title, content, order_index
		FROM chapters WHERE book_id = ? ORDER BY chapter_id`, bookID)
	if err != nil {
		return nil, r.check(fmt.Errorf("list chapters of %s: %w", bookID, err))
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, r.check(fmt.Errorf("scan chapter: %w", err))
		}
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, r.check(err)
	}

	SortChapters(chapters)
	return chapters, nil
}

// GetChapter returns nil without an error when the chapter is not stored.
func (r *Repository) GetChapter(ctx context.Context, bookID, chapterID string) (*Chapter, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	ch, err := scanChapter(db.QueryRowContext(ctx, `
		SELECT book_id, chapter_id, title, content, order_index
		FROM chapters WHERE book_id = ? AND chapter_id = ?`, bookID, chapterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.check(fmt.Errorf("get chapter %s/%s: %w", bookID, chapterID, err))
	}
	return ch, nil
}

// SortChapters orders chapters by OrderIndex. A chapter without one sorts
// by its ID read as a number, and a non-numeric ID counts as 0.
func SortChapters(chapters []*Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapterOrder(chapters[i]) < chapterOrder(chapters[j])
	})
}

func chapterOrder(ch *Chapter) float64 {
	if ch.OrderIndex != nil {
		return float64(*ch.OrderIndex)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(ch.ID), 64)
	if err != nil {
		return 0
	}
	return n
}

// DeleteBook removes a book with its chapters and progress. Nothing
// belonging to another book is touched.
func (r *Repository) DeleteBook(ctx context.Context, bookID string) error {
	db, err := r.db()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return r.check(fmt.Errorf("begin delete: %w", err))
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		what  string
	}{
		{`DELETE FROM chapters WHERE book_id = ?`, "chapters"},
		{`DELETE FROM progress WHERE book_id = ?`, "progress"},
		{`DELETE FROM books WHERE book_id = ?`, "book"},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, bookID); err != nil {
			return r.check(fmt.Errorf("delete %s of %s: %w", s.what, bookID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return r.check(fmt.Errorf("commit delete: %w", err))
	}
	return nil
}

// SaveProgress upserts the single progress row of a book.
func (r *Repository) SaveProgress(ctx context.Context, p *Progress) error {
	db, err := r.db()
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = r.now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO progress (book_id, chapter_index, chapter_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (book_id) DO UPDATE SET
			chapter_index = excluded.chapter_index,
			chapter_id = excluded.chapter_id,
			updated_at = excluded.updated_at`,
		p.BookID, p.ChapterIndex, p.ChapterID, p.UpdatedAt.UTC(),
	)
	if err != nil {
		return r.check(fmt.Errorf("save progress of %s: %w", p.BookID, err))
	}
	return nil
}

// GetProgress returns nil without an error when no progress is stored.
func (r *Repository) GetProgress(ctx context.Context, bookID string) (*Progress, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	var p Progress
	err = db.QueryRowContext(ctx, `
		SELECT book_id, chapter_index, chapter_id, updated_at
		FROM progress WHERE book_id = ?`, bookID).
		Scan(&p.BookID, &p.ChapterIndex, &p.ChapterID, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.check(fmt.Errorf("get progress of %s: %w", bookID, err))
	}
	return &p, nil
}

// ProgressBookIDs lists the books that have saved progress.
func (r *Repository) ProgressBookIDs(ctx context.Context) ([]string, error) {
	db, err := r.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT book_id FROM progress ORDER BY updated_at DESC`)
	if err != nil {
		return nil, r.check(fmt.Errorf("list progress: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, r.check(fmt.Errorf("scan progress: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, r.check(rows.Err())
}

// Clear empties books, chapters and progress in one transaction.
func (r *Repository) Clear(ctx context.Context) error {
	db, err := r.db()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return r.check(fmt.Errorf("begin clear: %w", err))
	}
	defer tx.Rollback()

	for _, table := range []string{"chapters", "progress", "books"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return r.check(fmt.Errorf("clear %s: %w", table, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return r.check(fmt.Errorf("commit clear: %w", err))
	}
	return nil
}

// CountChapters returns how many chapters of a book are stored.
func (r *Repository) CountChapters(ctx context.Context, bookID string) (int, error) {
	db, err := r.db()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM chapters WHERE book_id = ?`, bookID).Scan(&n); err != nil {
		return 0, r.check(fmt.Errorf("count chapters of %s: %w", bookID, err))
	}
	return n, nil
}
