package services

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/kerbaras/novels/pkg/data"
	"github.com/kerbaras/novels/pkg/utils"
)

// Connectivity tells whether the platform can be reached right now.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Online(ctx context.Context) bool { return f(ctx) }

// HeadProbe is online when a HEAD of the origin root answers 2xx.
type HeadProbe struct {
	api *utils.API
}

func NewHeadProbe(origin string, client *http.Client) *HeadProbe {
	return &HeadProbe{api: utils.NewAPI(origin, client)}
}

func (p *HeadProbe) Online(ctx context.Context) bool {
	return p.api.Head(ctx, "/") == nil
}

type ProgressReader interface {
	GetProgress(ctx context.Context, bookID string) (*data.Progress, error)
}

type progressPayload struct {
	ChapterIndex int    `json:"chapterIndex"`
	ChapterID    string `json:"chapterId"`
}

// ProgressSyncer pushes locally saved progress to the platform. It is best
// effort: nothing is queued or retried and no error reaches the caller.
// The platform keeps whatever was pushed last.
type ProgressSyncer struct {
	progress     ProgressReader
	api          *utils.API
	connectivity Connectivity
	offline      func() bool
	logger       *slog.Logger
}

type SyncerOptions struct {
	Origin       string
	Client       *http.Client
	Progress     ProgressReader
	Connectivity Connectivity // nil means always online
	Offline      func() bool  // the user's offline mode flag
	Logger       *slog.Logger
}

func NewProgressSyncer(opts SyncerOptions) *ProgressSyncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connectivity := opts.Connectivity
	if connectivity == nil {
		connectivity = ConnectivityFunc(func(context.Context) bool { return true })
	}
	offline := opts.Offline
	if offline == nil {
		offline = func() bool { return false }
	}
	return &ProgressSyncer{
		progress:     opts.Progress,
		api:          utils.NewAPI(opts.Origin, opts.Client),
		connectivity: connectivity,
		offline:      offline,
		logger:       logger.With("component", "progress-sync"),
	}
}

// Sync reports whether progress was accepted by the platform.
func (s *ProgressSyncer) Sync(ctx context.Context, bookID string) bool {
	p, err := s.progress.GetProgress(ctx, bookID)
	if err != nil {
		s.logger.Warn("read progress", "book_id", bookID, "error", err)
		return false
	}
	if p == nil {
		s.logger.Debug("no progress to sync", "book_id", bookID)
		return false
	}
	if s.offline() {
		s.logger.Debug("offline mode, skipping sync", "book_id", bookID)
		return false
	}
	if !s.connectivity.Online(ctx) {
		s.logger.Debug("platform unreachable, skipping sync", "book_id", bookID)
		return false
	}

	requestID := uuid.New().String()
	header := http.Header{"X-Request-ID": {requestID}}
	payload := progressPayload{ChapterIndex: p.ChapterIndex, ChapterID: p.ChapterID}
	if err := s.api.Post(ctx, "/api/progress/"+url.PathEscape(bookID), payload, header, nil); err != nil {
		s.logger.Warn("sync progress failed", "book_id", bookID, "request_id", requestID, "error", err)
		return false
	}
	s.logger.Info("progress synced", "book_id", bookID, "request_id", requestID, "chapter_index", p.ChapterIndex)
	return true
}
