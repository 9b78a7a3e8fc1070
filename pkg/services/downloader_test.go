package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/novels/pkg/data"
	"github.com/kerbaras/novels/pkg/sources"
)

func chapterRefs(n int) []sources.ChapterRef {
	refs := make([]sources.ChapterRef, n)
	for i := range refs {
		refs[i] = sources.ChapterRef{ID: fmt.Sprintf("c%d", i), Title: fmt.Sprintf("Chapter %d", i), Index: i}
	}
	return refs
}

func TestNewDownloader(t *testing.T) {
	downloader := NewDownloader(&mockSource{}, &mockSaver{}, DownloaderOptions{})
	defer downloader.Close()

	if downloader.concurrency != 3 {
		t.Errorf("default concurrency = %d, want 3", downloader.concurrency)
	}
	if downloader.rateLimiter != nil {
		t.Error("no rate limiter without an interval")
	}
	if downloader.GetProgressChannel() == nil {
		t.Error("GetProgressChannel() returned nil")
	}
}

func TestDownloader_DownloadBook(t *testing.T) {
	var saved []*data.Chapter
	var savedInfo *data.BookInfo
	source := &mockSource{
		getBookFunc: func(ctx context.Context, id string) (*data.BookInfo, error) {
			return &data.BookInfo{Title: "The Long Road"}, nil
		},
		getChaptersFunc: func(ctx context.Context, bookID string) ([]sources.ChapterRef, error) {
			return chapterRefs(5), nil
		},
	}
	saver := &mockSaver{saveFunc: func(ctx context.Context, bookID string, info *data.BookInfo, chapters []*data.Chapter) error {
		savedInfo = info
		saved = chapters
		return nil
	}}

	downloader := NewDownloader(source, saver, DownloaderOptions{Interval: time.Millisecond})
	defer downloader.Close()

	require.NoError(t, downloader.DownloadBook(context.Background(), "b1"))

	require.Len(t, saved, 5)
	for i, ch := range saved {
		assert.Equal(t, fmt.Sprintf("c%d", i), ch.ID, "chapters keep the table of contents order")
		require.NotNil(t, ch.OrderIndex)
		assert.Equal(t, i, *ch.OrderIndex)
		assert.Equal(t, fmt.Sprintf("Chapter %d", i), ch.Title)
	}
	assert.Equal(t, 5, savedInfo.TotalChapters)

	var statuses []string
	for len(downloader.GetProgressChannel()) > 0 {
		statuses = append(statuses, (<-downloader.GetProgressChannel()).Status)
	}
	require.NotEmpty(t, statuses)
	assert.Equal(t, "complete", statuses[len(statuses)-1])
	assert.Contains(t, statuses, "saving")
}

func TestDownloader_ChapterFailureSavesNothing(t *testing.T) {
	var saves atomic.Int32
	source := &mockSource{
		getChaptersFunc: func(ctx context.Context, bookID string) ([]sources.ChapterRef, error) {
			return chapterRefs(4), nil
		},
		getChapterFunc: func(ctx context.Context, bookID, chapterID string) (*data.Chapter, error) {
			if chapterID == "c2" {
				return nil, fmt.Errorf("server error")
			}
			return &data.Chapter{ID: chapterID}, nil
		},
	}
	saver := &mockSaver{saveFunc: func(context.Context, string, *data.BookInfo, []*data.Chapter) error {
		saves.Add(1)
		return nil
	}}

	downloader := NewDownloader(source, saver, DownloaderOptions{})
	defer downloader.Close()

	err := downloader.DownloadBook(context.Background(), "b1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c2")
	assert.Equal(t, int32(0), saves.Load())
}

func TestDownloader_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	source := &mockSource{
		getChaptersFunc: func(ctx context.Context, bookID string) ([]sources.ChapterRef, error) {
			return chapterRefs(12), nil
		},
		getChapterFunc: func(ctx context.Context, bookID, chapterID string) (*data.Chapter, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return &data.Chapter{ID: chapterID}, nil
		},
	}

	downloader := NewDownloader(source, &mockSaver{}, DownloaderOptions{Concurrency: 2})
	defer downloader.Close()

	require.NoError(t, downloader.DownloadBook(context.Background(), "b1"))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDownloader_Errors(t *testing.T) {
	t.Run("empty id", func(t *testing.T) {
		downloader := NewDownloader(&mockSource{}, &mockSaver{}, DownloaderOptions{})
		defer downloader.Close()
		assert.Error(t, downloader.DownloadBook(context.Background(), ""))
	})

	t.Run("book lookup fails", func(t *testing.T) {
		source := &mockSource{getBookFunc: func(context.Context, string) (*data.BookInfo, error) {
			return nil, fmt.Errorf("not found")
		}}
		downloader := NewDownloader(source, &mockSaver{}, DownloaderOptions{})
		defer downloader.Close()
		assert.Error(t, downloader.DownloadBook(context.Background(), "b1"))

		progress := <-downloader.GetProgressChannel()
		assert.Equal(t, "error", progress.Status)
		assert.Error(t, progress.Error)
	})

	t.Run("save fails", func(t *testing.T) {
		saver := &mockSaver{saveFunc: func(context.Context, string, *data.BookInfo, []*data.Chapter) error {
			return data.ErrStorageUnavailable
		}}
		downloader := NewDownloader(&mockSource{}, saver, DownloaderOptions{})
		defer downloader.Close()
		assert.ErrorIs(t, downloader.DownloadBook(context.Background(), "b1"), data.ErrStorageUnavailable)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		source := &mockSource{getChaptersFunc: func(context.Context, string) ([]sources.ChapterRef, error) {
			return chapterRefs(3), nil
		}}
		downloader := NewDownloader(source, &mockSaver{}, DownloaderOptions{Interval: time.Hour})
		defer downloader.Close()
		assert.ErrorIs(t, downloader.DownloadBook(ctx, "b1"), context.Canceled)
	})
}

func TestDownloader_CloseTwice(t *testing.T) {
	downloader := NewDownloader(&mockSource{}, &mockSaver{}, DownloaderOptions{Interval: time.Second})
	downloader.Close()
	assert.NotPanics(t, downloader.Close)
}

func TestDownloader_IntoOfflineStore(t *testing.T) {
	env := newTestEnv(t, nil)
	source := &mockSource{
		getChaptersFunc: func(ctx context.Context, bookID string) ([]sources.ChapterRef, error) {
			return chapterRefs(3), nil
		},
	}
	downloader := NewDownloader(source, env.service, DownloaderOptions{})
	defer downloader.Close()

	require.NoError(t, downloader.DownloadBook(context.Background(), "b1"))

	ctx := context.Background()
	assert.True(t, env.service.IsBookDownloaded(ctx, "b1"))
	chapters := env.service.GetOfflineChapters(ctx, "b1")
	require.Len(t, chapters, 3)
	assert.Equal(t, "content of c0", chapters[0].Content)
}
