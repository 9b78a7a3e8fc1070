package cache

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// StrategyID is the outcome of classifying a request.
type StrategyID int

const (
	StrategyPassthrough StrategyID = iota
	StrategyAPI
	StrategyImage
	StrategyCDN
	StrategyCacheFirst
	StrategyNetworkFirst
)

func (id StrategyID) String() string {
	switch id {
	case StrategyPassthrough:
		return "passthrough"
	case StrategyAPI:
		return "api-ttl"
	case StrategyImage:
		return "image"
	case StrategyCDN:
		return "cdn-ttl"
	case StrategyCacheFirst:
		return "cache-first"
	case StrategyNetworkFirst:
		return "network-first"
	default:
		return fmt.Sprintf("strategy(%d)", int(id))
	}
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".bmp": true, ".avif": true,
}

var staticExtensions = map[string]bool{
	".js": true, ".mjs": true, ".css": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".html": true, ".htm": true,
}

// DefaultCDNHosts are the cross-origin hosts whose responses are cached.
var DefaultCDNHosts = []string{
	"fonts.googleapis.com",
	"fonts.gstatic.com",
	"cdn.jsdelivr.net",
	"cdnjs.cloudflare.com",
	"unpkg.com",
}

// Rules hold what Classify needs to know about the app.
type Rules struct {
	Origin    *url.URL
	APIPrefix string
	CDNHosts  []string
}

func (r Rules) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, r.Origin.Scheme) && strings.EqualFold(u.Host, r.Origin.Host)
}

func (r Rules) cdnHost(host string) bool {
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	for _, h := range r.CDNHosts {
		if host == strings.ToLower(h) {
			return true
		}
	}
	return false
}

// Classify picks the strategy for req. It has no side effects.
func (r Rules) Classify(req *http.Request) StrategyID {
	if req.Method != http.MethodGet && req.Method != "" {
		return StrategyPassthrough
	}
	u := req.URL
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return StrategyPassthrough
	}

	same := r.sameOrigin(u)
	ext := strings.ToLower(path.Ext(u.Path))

	switch {
	case same && r.APIPrefix != "" && strings.HasPrefix(u.Path, r.APIPrefix):
		return StrategyAPI
	case imageExtensions[ext]:
		return StrategyImage
	case !same && r.cdnHost(u.Host):
		return StrategyCDN
	case !same:
		return StrategyPassthrough
	case u.Path == "" || u.Path == "/" || staticExtensions[ext]:
		return StrategyCacheFirst
	default:
		return StrategyNetworkFirst
	}
}

// RouterOptions configure NewRouter.
type RouterOptions struct {
	Origin       string
	APIPrefix    string
	CDNHosts     []string
	OfflineShell string // path of the offline document, relative to Origin
	Registry     *Registry
	Storage      *Storage
	Transport    http.RoundTripper // the network; http.DefaultTransport when nil
	Now          func() time.Time
	Logger       *slog.Logger
}

// Router intercepts outgoing requests and dispatches them to the strategy
// chosen by Classify. It is an http.RoundTripper, so any http.Client can
// go through it.
type Router struct {
	rules     Rules
	transport http.RoundTripper

	mu         sync.RWMutex
	strategies map[StrategyID]Strategy
	bg         *background
	logger     *slog.Logger
}

func NewRouter(opts RouterOptions) (*Router, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", opts.Origin)
	}
	if opts.Registry == nil || opts.Storage == nil {
		return nil, fmt.Errorf("registry and storage are required")
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache-router")
	cdnHosts := opts.CDNHosts
	if cdnHosts == nil {
		cdnHosts = DefaultCDNHosts
	}

	partitions := make(map[Kind]*Partition)
	for _, spec := range opts.Registry.Partitions() {
		p, err := opts.Storage.Open(spec.Name)
		if err != nil {
			return nil, err
		}
		partitions[spec.Kind] = p
	}

	documents := lookup{partitions[KindStatic], partitions[KindDynamic]}
	shell := &offlineShell{partitions: documents, logger: logger}
	if opts.OfflineShell != "" {
		ref, err := url.Parse(opts.OfflineShell)
		if err != nil {
			return nil, fmt.Errorf("invalid offline shell %q: %w", opts.OfflineShell, err)
		}
		shell.url = origin.ResolveReference(ref)
	}

	bg := &background{}
	networkFirst := &NetworkFirst{
		transport: transport,
		partition: partitions[KindDynamic],
		fallback:  documents,
		shell:     shell,
		logger:    logger,
	}
	api := opts.Registry.Spec(KindAPI)
	static := opts.Registry.Spec(KindStatic)

	return &Router{
		rules:     Rules{Origin: origin, APIPrefix: opts.APIPrefix, CDNHosts: cdnHosts},
		transport: transport,
		strategies: map[StrategyID]Strategy{
			StrategyPassthrough:  &Passthrough{transport: transport},
			StrategyAPI:          NewTTLCache(transport, partitions[KindAPI], api.MaxAge, opts.Now, logger),
			StrategyCDN:          NewTTLCache(transport, partitions[KindStatic], static.MaxAge, opts.Now, logger),
			StrategyImage:        &ImageCache{transport: transport, partition: partitions[KindImage], logger: logger},
			StrategyNetworkFirst: networkFirst,
			StrategyCacheFirst: &CacheFirst{
				transport: transport,
				partition: partitions[KindStatic],
				documents: networkFirst,
				shell:     shell,
				bg:        bg,
				logger:    logger,
			},
		},
		bg:     bg,
		logger: logger,
	}, nil
}

// Use replaces the strategy for id. It is safe while requests are in
// flight; requests already dispatched keep the old strategy.
func (r *Router) Use(id StrategyID, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[id] = s
}

func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	id := r.rules.Classify(req)
	r.logger.Debug("route", "method", req.Method, "url", req.URL.String(), "strategy", id.String())

	r.mu.RLock()
	strategy := r.strategies[id]
	r.mu.RUnlock()
	return strategy.Handle(req)
}

// Wait blocks until background revalidations have finished.
func (r *Router) Wait() {
	r.bg.Wait()
}
