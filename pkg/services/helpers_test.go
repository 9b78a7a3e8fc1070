package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kerbaras/novels/pkg/cache"
	"github.com/kerbaras/novels/pkg/data"
	"github.com/kerbaras/novels/pkg/sources"
)

// Mock implementations for testing

type mockSource struct {
	getBookFunc     func(ctx context.Context, id string) (*data.BookInfo, error)
	getChaptersFunc func(ctx context.Context, bookID string) ([]sources.ChapterRef, error)
	getChapterFunc  func(ctx context.Context, bookID, chapterID string) (*data.Chapter, error)
}

func (m *mockSource) GetBook(ctx context.Context, id string) (*data.BookInfo, error) {
	if m.getBookFunc != nil {
		return m.getBookFunc(ctx, id)
	}
	return &data.BookInfo{Title: id}, nil
}

func (m *mockSource) GetChapters(ctx context.Context, bookID string) ([]sources.ChapterRef, error) {
	if m.getChaptersFunc != nil {
		return m.getChaptersFunc(ctx, bookID)
	}
	return nil, nil
}

func (m *mockSource) GetChapter(ctx context.Context, bookID, chapterID string) (*data.Chapter, error) {
	if m.getChapterFunc != nil {
		return m.getChapterFunc(ctx, bookID, chapterID)
	}
	return &data.Chapter{ID: chapterID, Content: "content of " + chapterID}, nil
}

type mockSaver struct {
	saveFunc func(ctx context.Context, bookID string, info *data.BookInfo, chapters []*data.Chapter) error
}

func (m *mockSaver) DownloadBookForOffline(ctx context.Context, bookID string, info *data.BookInfo, chapters []*data.Chapter) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, bookID, info, chapters)
	}
	return nil
}

// Test helpers

type testEnv struct {
	service *OfflineService
	repo    *data.Repository
	storage *cache.Storage
	dir     string
}

func newTestEnv(t *testing.T, syncer *ProgressSyncer) *testEnv {
	t.Helper()
	dir := t.TempDir()

	handle := data.NewStorageHandle(filepath.Join(dir, "offline.duckdb"))
	t.Cleanup(func() { handle.Close() })
	repo := data.NewRepository(handle)

	storage, err := cache.OpenStorage(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	service := NewOfflineService(OfflineOptions{
		Repository: repo,
		Meta:       storage,
		Syncer:     syncer,
		Files:      []string{handle.Path(), handle.Path() + ".wal", storage.Path()},
		Quota:      1 << 20,
	})
	return &testEnv{service: service, repo: repo, storage: storage, dir: dir}
}

// newUnavailableService returns a service whose store can never be opened.
func newUnavailableService(t *testing.T) *OfflineService {
	t.Helper()
	handle := data.NewStorageHandle(filepath.Join(t.TempDir(), "offline.duckdb"),
		data.WithOpener(func(string) (*sql.DB, error) {
			return nil, errors.New("permission denied")
		}),
	)
	return NewOfflineService(OfflineOptions{Repository: data.NewRepository(handle)})
}

func intPtr(i int) *int {
	return &i
}
