package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kerbaras/novels/pkg/data"
	"github.com/kerbaras/novels/pkg/utils"
)

type book struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Cover         string   `json:"cover"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	TotalChapters int      `json:"totalChapters"`
	Format        string   `json:"format"`
}

func (b *book) ToBookInfo() *data.BookInfo {
	return &data.BookInfo{
		Title:         b.Title,
		Author:        b.Author,
		Cover:         b.Cover,
		Description:   b.Description,
		Tags:          b.Tags,
		TotalChapters: b.TotalChapters,
		Format:        b.Format,
	}
}

type chapter struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Index   *int   `json:"index"`
	Content string `json:"content"`
}

// Platform reads books from the web-novel platform's JSON API. Requests
// go through the client it was given, so a caching transport applies.
type Platform struct {
	api *utils.API
}

func NewPlatform(origin string, client *http.Client) *Platform {
	return &Platform{api: utils.NewAPI(origin+"/api", client)}
}

func (p *Platform) GetBook(ctx context.Context, id string) (*data.BookInfo, error) {
	var b book
	if err := p.api.Get(ctx, fmt.Sprintf("/books/%s", url.PathEscape(id)), nil, &b); err != nil {
		return nil, fmt.Errorf("get book %s: %w", id, err)
	}
	info := b.ToBookInfo()
	if info.Title == "" {
		info.Title = id
	}
	return info, nil
}

func (p *Platform) GetChapters(ctx context.Context, bookID string) ([]ChapterRef, error) {
	var feed struct {
		Chapters []chapter `json:"chapters"`
	}
	if err := p.api.Get(ctx, fmt.Sprintf("/books/%s/chapters", url.PathEscape(bookID)), nil, &feed); err != nil {
		return nil, fmt.Errorf("get chapters of %s: %w", bookID, err)
	}
	out := make([]ChapterRef, len(feed.Chapters))
	for i, c := range feed.Chapters {
		index := i
		if c.Index != nil {
			index = *c.Index
		}
		out[i] = ChapterRef{ID: c.ID, Title: c.Title, Index: index}
	}
	return out, nil
}

func (p *Platform) GetChapter(ctx context.Context, bookID, chapterID string) (*data.Chapter, error) {
	var c chapter
	path := fmt.Sprintf("/books/%s/chapters/%s", url.PathEscape(bookID), url.PathEscape(chapterID))
	if err := p.api.Get(ctx, path, nil, &c); err != nil {
		return nil, fmt.Errorf("get chapter %s/%s: %w", bookID, chapterID, err)
	}
	id := c.ID
	if id == "" {
		id = chapterID
	}
	return &data.Chapter{BookID: bookID, ID: id, Title: c.Title, Content: c.Content, OrderIndex: c.Index}, nil
}
