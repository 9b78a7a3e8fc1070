package data

import "time"

type Book struct {
	ID            string
	Title         string
	Author        string
	Cover         string // cover image URL
	Description   string
	Tags          []string
	TotalChapters int
	DownloadedAt  time.Time
	Format        string // "html" or "text"
}

type Chapter struct {
	BookID     string
	ID         string
	Title      string
	Content    string
	OrderIndex *int // nil when the source did not provide one
}

type Progress struct {
	BookID       string
	ChapterIndex int
	ChapterID    string
	UpdatedAt    time.Time
}

// BookInfo is the metadata handed to a download. The book ID is passed
// separately and wins over anything the caller resolved.
type BookInfo struct {
	Title         string
	Author        string
	Cover         string
	Description   string
	Tags          []string
	TotalChapters int
	Format        string
}
