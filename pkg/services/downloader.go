package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kerbaras/novels/pkg/data"
	"github.com/kerbaras/novels/pkg/sources"
)

// DownloadProgress represents the progress of a download operation
type DownloadProgress struct {
	BookID    string
	ChapterID string
	Done      int
	Total     int
	Status    string // "downloading", "saving", "complete", "error"
	Error     error
}

// BookSaver stores a fully fetched book.
type BookSaver interface {
	DownloadBookForOffline(ctx context.Context, bookID string, info *data.BookInfo, chapters []*data.Chapter) error
}

// Downloader fetches every chapter of a book and hands the whole book to
// the offline store in one go, so a failed download leaves nothing behind.
type Downloader struct {
	source       sources.Source
	saver        BookSaver
	concurrency  int
	rateLimiter  *time.Ticker
	progressChan chan DownloadProgress
	closeOnce    sync.Once
	logger       *slog.Logger
}

type DownloaderOptions struct {
	Concurrency int           // 3 when zero
	Interval    time.Duration // minimum gap between chapter requests; none when zero
	Logger      *slog.Logger
}

// NewDownloader creates a new Downloader instance
func NewDownloader(source sources.Source, saver BookSaver, opts DownloaderOptions) *Downloader {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Downloader{
		source:       source,
		saver:        saver,
		concurrency:  concurrency,
		progressChan: make(chan DownloadProgress, 100),
		logger:       logger.With("component", "downloader"),
	}
	if opts.Interval > 0 {
		d.rateLimiter = time.NewTicker(opts.Interval)
	}
	return d
}

// GetProgressChannel returns the channel for receiving download progress updates
func (d *Downloader) GetProgressChannel() <-chan DownloadProgress {
	return d.progressChan
}

// DownloadBook resolves the book and its chapters, fetches them all and
// saves the result atomically.
func (d *Downloader) DownloadBook(ctx context.Context, bookID string) error {
	if bookID == "" {
		return fmt.Errorf("book id is required")
	}

	info, err := d.source.GetBook(ctx, bookID)
	if err != nil {
		return d.fail(bookID, fmt.Errorf("failed to get book: %w", err))
	}
	refs, err := d.source.GetChapters(ctx, bookID)
	if err != nil {
		return d.fail(bookID, fmt.Errorf("failed to get chapters: %w", err))
	}
	if info.TotalChapters == 0 {
		info.TotalChapters = len(refs)
	}

	chapters := make([]*data.Chapter, len(refs))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			if err := d.wait(gctx); err != nil {
				return err
			}
			d.sendProgress(DownloadProgress{BookID: bookID, ChapterID: ref.ID, Done: int(done.Load()), Total: len(refs), Status: "downloading"})

			chapter, err := d.source.GetChapter(gctx, bookID, ref.ID)
			if err != nil {
				return fmt.Errorf("chapter %s: %w", ref.ID, err)
			}
			if chapter.Title == "" {
				chapter.Title = ref.Title
			}
			if chapter.OrderIndex == nil {
				index := ref.Index
				chapter.OrderIndex = &index
			}
			chapters[i] = chapter
			done.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return d.fail(bookID, err)
	}

	d.sendProgress(DownloadProgress{BookID: bookID, Done: len(refs), Total: len(refs), Status: "saving"})
	if err := d.saver.DownloadBookForOffline(ctx, bookID, info, chapters); err != nil {
		return d.fail(bookID, err)
	}
	d.sendProgress(DownloadProgress{BookID: bookID, Done: len(refs), Total: len(refs), Status: "complete"})
	d.logger.Info("book downloaded", "book_id", bookID, "chapters", len(refs))
	return nil
}

func (d *Downloader) wait(ctx context.Context) error {
	if d.rateLimiter == nil {
		return ctx.Err()
	}
	select {
	case <-d.rateLimiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Downloader) fail(bookID string, err error) error {
	d.logger.Error("download failed", "book_id", bookID, "error", err)
	d.sendProgress(DownloadProgress{BookID: bookID, Status: "error", Error: err})
	return err
}

// sendProgress sends a progress update (non-blocking)
func (d *Downloader) sendProgress(progress DownloadProgress) {
	select {
	case d.progressChan <- progress:
	default:
		// Channel full, skip this update
	}
}

// Close stops the rate limiter and closes the progress channel. The
// downloader must not be used afterwards.
func (d *Downloader) Close() {
	d.closeOnce.Do(func() {
		if d.rateLimiter != nil {
			d.rateLimiter.Stop()
		}
		close(d.progressChan)
	})
}
