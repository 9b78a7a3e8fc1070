package cache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// NetworkFirst prefers fresh responses and keeps a copy in the dynamic
// partition for when the network is gone. Offline it answers from any
// current partition, so precached documents are found too.
type NetworkFirst struct {
	transport http.RoundTripper
	partition *Partition
	fallback  lookup
	shell     *offlineShell
	logger    *slog.Logger
}

func (s *NetworkFirst) Handle(req *http.Request) (*http.Response, error) {
	resp, err := fetch(s.transport, req)
	if err != nil {
		entry, matchErr := s.fallback.Match(req)
		if matchErr != nil {
			s.logger.Warn("cache lookup failed", "url", req.URL.String(), "error", matchErr)
		}
		if entry != nil {
			s.logger.Debug("network failed, serving cached copy", "url", req.URL.String(), "error", err)
			return entry.Response(req), nil
		}
		s.logger.Debug("network failed, serving offline shell", "url", req.URL.String(), "error", err)
		return s.shell.Response(req), nil
	}

	if !ok(resp) {
		return resp, nil
	}
	resp, err = store(s.partition, req, resp, nil)
	if err != nil {
		if resp == nil {
			return s.shell.Response(req), nil
		}
		s.logger.Warn("store response", "partition", s.partition.Name(), "url", req.URL.String(), "error", err)
	}
	return resp, nil
}

// CacheFirst serves static assets from the cache and refreshes them in the
// background. Documents go through NetworkFirst so markup is never stale.
type CacheFirst struct {
	transport http.RoundTripper
	partition *Partition
	documents Strategy
	shell     *offlineShell
	bg        *background
	logger    *slog.Logger
}

func (s *CacheFirst) Handle(req *http.Request) (*http.Response, error) {
	if isDocument(req) {
		return s.documents.Handle(req)
	}

	entry, err := s.partition.Match(req)
	if err != nil {
		s.logger.Warn("cache lookup failed", "url", req.URL.String(), "error", err)
	}
	if entry != nil {
		s.revalidate(req)
		return entry.Response(req), nil
	}

	resp, err := fetch(s.transport, req)
	if err != nil {
		s.logger.Debug("network failed, serving offline shell", "url", req.URL.String(), "error", err)
		return s.shell.Response(req), nil
	}
	if !ok(resp) {
		return resp, nil
	}
	resp, err = store(s.partition, req, resp, nil)
	if err != nil {
		if resp == nil {
			return s.shell.Response(req), nil
		}
		s.logger.Warn("store response", "partition", s.partition.Name(), "url", req.URL.String(), "error", err)
	}
	return resp, nil
}

// revalidate refetches req after the caller has been answered. It outlives
// the caller's context and its errors are dropped.
func (s *CacheFirst) revalidate(req *http.Request) {
	bgReq := req.Clone(context.WithoutCancel(req.Context()))
	s.bg.Go(func() {
		resp, err := fetch(s.transport, bgReq)
		if err != nil {
			s.logger.Debug("revalidation failed", "url", bgReq.URL.String(), "error", err)
			return
		}
		if !ok(resp) {
			resp.Body.Close()
			return
		}
		resp, err = store(s.partition, bgReq, resp, nil)
		if err != nil {
			s.logger.Debug("revalidation store failed", "url", bgReq.URL.String(), "error", err)
		}
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	})
}

// ImageCache serves images from the image partition and never lets an
// image failure reach the page: a placeholder is returned instead.
type ImageCache struct {
	transport http.RoundTripper
	partition *Partition
	logger    *slog.Logger
}

func (s *ImageCache) Handle(req *http.Request) (*http.Response, error) {
	entry, err := s.partition.Match(req)
	if err != nil {
		s.logger.Warn("cache lookup failed", "url", req.URL.String(), "error", err)
	}
	if entry != nil {
		return entry.Response(req), nil
	}

	resp, err := fetch(s.transport, req)
	if err != nil {
		s.logger.Debug("image fetch failed, serving placeholder", "url", req.URL.String(), "error", err)
		return placeholder(req), nil
	}
	if !ok(resp) {
		return resp, nil
	}
	resp, err = store(s.partition, req, resp, nil)
	if err != nil {
		if resp == nil {
			return placeholder(req), nil
		}
		s.logger.Warn("store response", "partition", s.partition.Name(), "url", req.URL.String(), "error", err)
	}
	return resp, nil
}

// Passthrough sends the request to the network untouched.
type Passthrough struct {
	transport http.RoundTripper
}

func (s *Passthrough) Handle(req *http.Request) (*http.Response, error) {
	return s.transport.RoundTrip(req)
}
