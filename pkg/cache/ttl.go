package cache

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// TTLCache serves an entry without touching the network while it is
// younger than MaxAge. API and CDN requests share this strategy with
// different partitions and ages.
type TTLCache struct {
	transport http.RoundTripper
	partition *Partition
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewTTLCache(transport http.RoundTripper, partition *Partition, maxAge time.Duration, now func() time.Time, logger *slog.Logger) *TTLCache {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TTLCache{transport: transport, partition: partition, maxAge: maxAge, now: now, logger: logger}
}

// fresh compares in milliseconds; an entry exactly MaxAge old is expired.
func (s *TTLCache) fresh(entry *Entry) bool {
	cachedAt, ok := entry.CachedAt()
	if !ok {
		return false
	}
	age := s.now().UnixMilli() - cachedAt.UnixMilli()
	return age < s.maxAge.Milliseconds()
}

func (s *TTLCache) Handle(req *http.Request) (*http.Response, error) {
	entry, err := s.partition.Match(req)
	if err != nil {
		s.logger.Warn("cache lookup failed", "url", req.URL.String(), "error", err)
	}
	if entry != nil && s.fresh(entry) {
		return entry.Response(req), nil
	}

	resp, err := fetch(s.transport, req)
	if err != nil {
		if entry != nil {
			s.logger.Debug("network failed, serving stale entry", "url", req.URL.String(), "error", err)
			return entry.Response(req), nil
		}
		return nil, err
	}
	if !ok(resp) {
		return resp, nil
	}

	stampedAt := strconv.FormatInt(s.now().UnixMilli(), 10)
	resp, err = store(s.partition, req, resp, func(h http.Header) {
		h.Set(HeaderCachedAt, stampedAt)
	})
	if err != nil {
		if resp == nil {
			if entry != nil {
				return entry.Response(req), nil
			}
			return nil, err
		}
		s.logger.Warn("store response", "partition", s.partition.Name(), "url", req.URL.String(), "error", err)
	}
	return resp, nil
}
