package sources

import (
	"context"

	"github.com/kerbaras/novels/pkg/data"
)

// ChapterRef is one row of a book's table of contents.
type ChapterRef struct {
	ID    string
	Title string
	Index int
}

// Source is where books are downloaded from.
type Source interface {
	GetBook(ctx context.Context, id string) (*data.BookInfo, error)
	GetChapters(ctx context.Context, bookID string) ([]ChapterRef, error)
	GetChapter(ctx context.Context, bookID, chapterID string) (*data.Chapter, error)
}
