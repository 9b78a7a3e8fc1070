package cache

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testOrigin = "https://novels.test"

// fakeNetwork answers requests with handler and counts them per URL. When
// down, every request fails like a dropped connection.
type fakeNetwork struct {
	mu      sync.Mutex
	down    bool
	calls   map[string]int
	handler http.HandlerFunc
}

func newFakeNetwork(handler http.HandlerFunc) *fakeNetwork {
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, "body of "+r.URL.Path)
		}
	}
	return &fakeNetwork{calls: make(map[string]int), handler: handler}
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	n.calls[req.URL.String()]++
	down := n.down
	n.mu.Unlock()

	if down {
		return nil, errors.New("dial tcp: connection refused")
	}
	rec := httptest.NewRecorder()
	n.handler(rec, req)
	return rec.Result(), nil
}

func (n *fakeNetwork) setDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

func (n *fakeNetwork) count(url string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[url]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := OpenStorage(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type testRouter struct {
	*Router
	storage  *Storage
	registry *Registry
	network  *fakeNetwork
	clock    *fakeClock
}

func newTestRouter(t *testing.T, network *fakeNetwork) *testRouter {
	t.Helper()
	storage := newTestStorage(t)
	registry := NewRegistry("novels", "v1")
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	r, err := NewRouter(RouterOptions{
		Origin:       testOrigin,
		APIPrefix:    "/api/",
		OfflineShell: "/offline.html",
		Registry:     registry,
		Storage:      storage,
		Transport:    network,
		Now:          clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(r.Wait)

	return &testRouter{Router: r, storage: storage, registry: registry, network: network, clock: clock}
}

func (tr *testRouter) partition(t *testing.T, kind Kind) *Partition {
	t.Helper()
	p, err := tr.storage.Open(tr.registry.Name(kind))
	require.NoError(t, err)
	return p
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
