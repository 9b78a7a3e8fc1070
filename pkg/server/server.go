// Package server exposes the caching router as an HTTP proxy so a browser
// can load the reader app through it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// StatusFunc reports extra fields for /healthz.
type StatusFunc func() map[string]any

type Options struct {
	Addr      string
	Origin    string
	Transport http.RoundTripper // usually the cache router
	Status    StatusFunc
	Logger    *slog.Logger
}

// Server proxies requests for the app origin (reverse proxy) and for any
// absolute URI (forward proxy) through one transport.
type Server struct {
	addr       string
	origin     *url.URL
	httpServer *http.Server
	logger     *slog.Logger
}

func New(opts Options) (*Server, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", opts.Origin)
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy")

	s := &Server{addr: opts.Addr, origin: origin, logger: logger}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler(opts.Transport, opts.Status),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handler(transport http.RoundTripper, status StatusFunc) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if pr.In.URL.IsAbs() {
				pr.Out.Host = pr.In.URL.Host
				return
			}
			pr.SetURL(s.origin)
			pr.Out.Host = s.origin.Host
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("proxy request failed", "method", r.Method, "url", r.URL.String(), "error", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok", "origin": s.origin.String()}
		if status != nil {
			for k, v := range status() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	mux.Handle("/", proxy)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodConnect {
			http.Error(w, "CONNECT is not supported", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.IsAbs() {
			proxy.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// Serve runs on l until ctx ends, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	serveErr := make(chan error, 1)
	s.logger.Info("proxy listening", "addr", l.Addr().String(), "origin", s.origin.String())
	go func() {
		serveErr <- s.httpServer.Serve(l)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, l)
}
