package cache

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HeaderCachedAt carries the unix milliseconds at which a TTL entry was
// stored.
const HeaderCachedAt = "X-Cached-At"

// Entry is a stored response.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Key normalizes a request to its cache key: method and URL without the
// fragment.
func Key(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + u.String()
}

// Response builds a fresh response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// CachedAt returns the stamp written by the TTL strategy.
func (e *Entry) CachedAt() (time.Time, bool) {
	raw := e.Header.Get(HeaderCachedAt)
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// capture drains resp into an entry and gives resp a fresh body, so the
// caller keeps an unread response while the entry is stored.
func capture(resp *http.Response) (*Entry, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Entry{Status: resp.StatusCode, Header: header, Body: body}, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
