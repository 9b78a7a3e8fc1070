package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kerbaras/novels/pkg/data"
)

const metaOfflineMode = "offline.mode"

// MetaStore keeps small settings next to the cache.
type MetaStore interface {
	GetMeta(key string) ([]byte, error)
	PutMeta(key string, value []byte) error
}

// CacheUsage is the disk space taken by offline data.
type CacheUsage struct {
	Usage int64
	Quota int64
}

// OfflineService is the surface the reader uses for explicit offline
// reading. Reads degrade to empty results when the store is unavailable;
// writes report the failure, except progress saves which never do.
type OfflineService struct {
	repo   *data.Repository
	meta   MetaStore
	events *Events
	syncer *ProgressSyncer
	files  []string
	quota  int64
	logger *slog.Logger
}

type OfflineOptions struct {
	Repository *data.Repository
	Meta       MetaStore
	Events     *Events
	Syncer     *ProgressSyncer
	// Files are the database files counted by GetCacheSize.
	Files  []string
	Quota  int64
	Logger *slog.Logger
}

func NewOfflineService(opts OfflineOptions) *OfflineService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := opts.Events
	if events == nil {
		events = NewEvents(logger)
	}
	return &OfflineService{
		repo:   opts.Repository,
		meta:   opts.Meta,
		events: events,
		syncer: opts.Syncer,
		files:  opts.Files,
		quota:  opts.Quota,
		logger: logger.With("component", "offline"),
	}
}

func (s *OfflineService) Events() *Events {
	return s.events
}

func (s *OfflineService) IsAvailable() bool {
	return s.repo.Handle().IsAvailable()
}

// DownloadBookForOffline stores a book and all its chapters atomically,
// replacing an earlier download of the same book.
func (s *OfflineService) DownloadBookForOffline(ctx context.Context, bookID string, info *data.BookInfo, chapters []*data.Chapter) error {
	if info == nil {
		info = &data.BookInfo{}
	}
	book := &data.Book{
		ID:            bookID,
		Title:         info.Title,
		Author:        info.Author,
		Cover:         info.Cover,
		Description:   info.Description,
		Tags:          info.Tags,
		TotalChapters: info.TotalChapters,
		Format:        info.Format,
	}
	if book.TotalChapters == 0 {
		book.TotalChapters = len(chapters)
	}
	if err := s.repo.SaveBook(ctx, book, chapters); err != nil {
		s.logger.Error("download for offline failed", "book_id", bookID, "error", err)
		return fmt.Errorf("download book %s: %w", bookID, err)
	}
	s.logger.Info("book saved for offline", "book_id", bookID, "chapters", len(chapters))
	return nil
}

func (s *OfflineService) GetOfflineBooks(ctx context.Context) []*data.Book {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		s.degraded("list books", err)
		return []*data.Book{}
	}
	return books
}

func (s *OfflineService) GetOfflineBook(ctx context.Context, bookID string) *data.Book {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		s.degraded("get book", err, "book_id", bookID)
		return nil
	}
	return book
}

func (s *OfflineService) GetOfflineChapters(ctx context.Context, bookID string) []*data.Chapter {
	chapters, err := s.repo.GetChapters(ctx, bookID)
	if err != nil {
		s.degraded("list chapters", err, "book_id", bookID)
		return []*data.Chapter{}
	}
	return chapters
}

func (s *OfflineService) GetOfflineChapter(ctx context.Context, bookID, chapterID string) *data.Chapter {
	chapter, err := s.repo.GetChapter(ctx, bookID, chapterID)
	if err != nil {
		s.degraded("get chapter", err, "book_id", bookID, "chapter_id", chapterID)
		return nil
	}
	return chapter
}

func (s *OfflineService) IsBookDownloaded(ctx context.Context, bookID string) bool {
	ok, err := s.repo.HasBook(ctx, bookID)
	if err != nil {
		s.degraded("check book", err, "book_id", bookID)
		return false
	}
	return ok
}

// DeleteOfflineBook removes the book with its chapters and progress.
func (s *OfflineService) DeleteOfflineBook(ctx context.Context, bookID string) error {
	if err := s.repo.DeleteBook(ctx, bookID); err != nil {
		s.logger.Error("delete offline book failed", "book_id", bookID, "error", err)
		return fmt.Errorf("delete book %s: %w", bookID, err)
	}
	s.logger.Info("offline book deleted", "book_id", bookID)
	return nil
}

// SaveOfflineProgress records the reading position. Failures are logged
// only; reading must go on.
func (s *OfflineService) SaveOfflineProgress(ctx context.Context, bookID string, chapterIndex int, chapterID string) {
	p := &data.Progress{BookID: bookID, ChapterIndex: chapterIndex, ChapterID: chapterID}
	if err := s.repo.SaveProgress(ctx, p); err != nil {
		s.logger.Warn("save progress failed", "book_id", bookID, "error", err)
	}
}

func (s *OfflineService) GetOfflineProgress(ctx context.Context, bookID string) *data.Progress {
	p, err := s.repo.GetProgress(ctx, bookID)
	if err != nil {
		s.degraded("get progress", err, "book_id", bookID)
		return nil
	}
	return p
}

// SyncOfflineProgress pushes the saved progress of bookID to the platform
// when it can be reached. It reports whether the push succeeded.
func (s *OfflineService) SyncOfflineProgress(ctx context.Context, bookID string) bool {
	if s.syncer == nil {
		return false
	}
	return s.syncer.Sync(ctx, bookID)
}

// SyncAllOfflineProgress pushes the progress of every book that has some
// and returns how many pushes the platform accepted.
func (s *OfflineService) SyncAllOfflineProgress(ctx context.Context) int {
	if s.syncer == nil {
		return 0
	}
	ids, err := s.repo.ProgressBookIDs(ctx)
	if err != nil {
		s.degraded("list progress", err)
		return 0
	}
	synced := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if s.syncer.Sync(ctx, id) {
			synced++
		}
	}
	return synced
}

// GetCacheSize sums the size of the database files. It returns nil when
// no file backed storage is configured.
func (s *OfflineService) GetCacheSize(ctx context.Context) *CacheUsage {
	var (
		usage int64
		known bool
	)
	for _, path := range s.files {
		if strings.TrimSpace(path) == "" {
			continue
		}
		known = true
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("stat database file", "path", path, "error", err)
			}
			continue
		}
		usage += info.Size()
	}
	if !known {
		return nil
	}
	return &CacheUsage{Usage: usage, Quota: s.quota}
}

// ClearAllOfflineData empties books, chapters and progress.
func (s *OfflineService) ClearAllOfflineData(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		s.logger.Error("clear offline data failed", "error", err)
		return fmt.Errorf("clear offline data: %w", err)
	}
	s.logger.Info("offline data cleared")
	return nil
}

func (s *OfflineService) IsOfflineMode() bool {
	if s.meta == nil {
		return false
	}
	v, err := s.meta.GetMeta(metaOfflineMode)
	if err != nil {
		s.logger.Warn("read offline mode", "error", err)
		return false
	}
	return string(v) == "1"
}

// SetOfflineMode persists the flag and tells subscribers when it changed.
func (s *OfflineService) SetOfflineMode(offline bool) error {
	if s.meta == nil {
		return fmt.Errorf("offline mode: %w", data.ErrStorageUnavailable)
	}
	before := s.IsOfflineMode()
	value := []byte("0")
	if offline {
		value = []byte("1")
	}
	if err := s.meta.PutMeta(metaOfflineMode, value); err != nil {
		return fmt.Errorf("save offline mode: %w", err)
	}
	if before != offline {
		s.logger.Info("offline mode changed", "offline", offline)
		s.events.Publish(OfflineModeChanged{Offline: offline, At: time.Now()})
	}
	return nil
}

func (s *OfflineService) degraded(op string, err error, args ...any) {
	args = append(args, "error", err)
	if errors.Is(err, data.ErrStorageUnavailable) {
		s.logger.Debug(op+": offline store unavailable", args...)
		return
	}
	s.logger.Warn(op+" failed", args...)
}
