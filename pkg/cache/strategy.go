package cache

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Strategy decides whether a request is answered from a partition or from
// the network.
type Strategy interface {
	Handle(req *http.Request) (*http.Response, error)
}

// NetworkError is a request that never produced a response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network request %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func fetch(transport http.RoundTripper, req *http.Request) (*http.Response, error) {
	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	return resp, nil
}

// store saves resp in p and hands resp back with a readable body. stamp
// adds headers to the stored copy only.
func store(p *Partition, req *http.Request, resp *http.Response, stamp func(http.Header)) (*http.Response, error) {
	entry, err := capture(resp)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	if stamp != nil {
		stamp(entry.Header)
	}
	if err := p.Put(req, entry); err != nil {
		return resp, err
	}
	return resp, nil
}

// background tracks fire-and-forget work such as revalidation so shutdown
// can wait for it.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *background) Wait() {
	b.wg.Wait()
}

// offlineShell answers navigations when neither the network nor the cache
// can.
type offlineShell struct {
	partitions lookup
	url        *url.URL
	logger     *slog.Logger
}

const offlineShellHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>This page is not available offline. Downloaded books can still be read.</p></body></html>`

func (s *offlineShell) Response(req *http.Request) *http.Response {
	if len(s.partitions) > 0 && s.url != nil {
		shellReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, s.url.String(), nil)
		if err == nil {
			entry, err := s.partitions.Match(shellReq)
			if err != nil {
				s.logger.Warn("offline shell lookup failed", "error", err)
			}
			if entry != nil {
				return entry.Response(req)
			}
		}
	}
	return synthesized(req, http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(offlineShellHTML))
}

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="280" viewBox="0 0 200 280">` +
	`<rect width="200" height="280" fill="#e0e0e0"/>` +
	`<text x="100" y="145" font-family="sans-serif" font-size="14" fill="#9e9e9e" text-anchor="middle">Image unavailable</text>` +
	`</svg>`

func placeholder(req *http.Request) *http.Response {
	resp := synthesized(req, http.StatusOK, "image/svg+xml", []byte(placeholderSVG))
	resp.Header.Set("X-Placeholder", "1")
	resp.Header.Set("Cache-Control", "no-store")
	return resp
}

func synthesized(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// isDocument reports whether req asks for HTML markup.
func isDocument(req *http.Request) bool {
	path := strings.ToLower(req.URL.Path)
	if path == "" || path == "/" || strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm") {
		return true
	}
	if req.Header.Get("Sec-Fetch-Dest") == "document" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
