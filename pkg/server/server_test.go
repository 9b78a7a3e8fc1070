package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu   sync.Mutex
	seen []*http.Request
	err  error
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.seen = append(rt.seen, req)
	rt.mu.Unlock()
	if rt.err != nil {
		return nil, rt.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("from " + req.URL.String())),
		Request:    req,
	}, nil
}

func newTestServer(t *testing.T, rt http.RoundTripper) *Server {
	t.Helper()
	s, err := New(Options{
		Origin:    "https://novels.test",
		Transport: rt,
		Status:    func() map[string]any { return map[string]any{"version": "v1"} },
	})
	require.NoError(t, err)
	return s
}

func TestServer_ReverseProxiesToOrigin(t *testing.T) {
	rt := &recordingTransport{}
	s := newTestServer(t, rt)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/1?page=2", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from https://novels.test/books/1?page=2", rec.Body.String())
	require.Len(t, rt.seen, 1)
	assert.Equal(t, "novels.test", rt.seen[0].Host)
}

func TestServer_ForwardProxiesAbsoluteURIs(t *testing.T) {
	rt := &recordingTransport{}
	s := newTestServer(t, rt)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "https://fonts.googleapis.com/css2?family=Inter", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from https://fonts.googleapis.com/css2?family=Inter", rec.Body.String())
}

func TestServer_Healthz(t *testing.T) {
	rt := &recordingTransport{}
	s := newTestServer(t, rt)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v1", body["version"])
	assert.Empty(t, rt.seen, "health checks never reach the network")
}

func TestServer_TransportErrorIsBadGateway(t *testing.T) {
	s := newTestServer(t, &recordingTransport{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/books/1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_RejectsConnect(t *testing.T) {
	s := newTestServer(t, &recordingTransport{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodConnect, "/", nil)
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ServeStopsWithContext(t *testing.T) {
	s := newTestServer(t, &recordingTransport{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Origin: "novels.test", Transport: &recordingTransport{}})
	assert.Error(t, err)
	_, err = New(Options{Origin: "https://novels.test"})
	assert.Error(t, err)
}
