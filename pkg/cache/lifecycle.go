package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// LifecycleState is where the current deployment version stands.
type LifecycleState int

const (
	StateNew LifecycleState = iota
	StateInstalled
	StateActivated
)

func (s LifecycleState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

const (
	metaInstalled = "lifecycle.installed"
	metaActivated = "lifecycle.activated"
)

// InstallReport summarizes a precache run.
type InstallReport struct {
	Cached int
	Failed map[string]error
}

type ActivateReport struct {
	Deleted []string
}

// Lifecycle installs and activates one deployment version. Progress is
// kept in the storage meta bucket so it happens once per version, even
// across processes.
type Lifecycle struct {
	registry    *Registry
	storage     *Storage
	transport   http.RoundTripper
	origin      *url.URL
	manifest    []string
	concurrency int
	logger      *slog.Logger

	claimed atomic.Bool
}

type LifecycleOptions struct {
	Registry    *Registry
	Storage     *Storage
	Transport   http.RoundTripper
	Origin      string
	Manifest    []string
	Concurrency int
	Logger      *slog.Logger
}

func NewLifecycle(opts LifecycleOptions) (*Lifecycle, error) {
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
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Lifecycle{
		registry:    opts.Registry,
		storage:     opts.Storage,
		transport:   transport,
		origin:      origin,
		manifest:    opts.Manifest,
		concurrency: concurrency,
		logger:      logger.With("component", "lifecycle", "version", opts.Registry.Version()),
	}, nil
}

func (l *Lifecycle) State() (LifecycleState, error) {
	version := l.registry.Version()
	activated, err := l.storage.GetMeta(metaActivated)
	if err != nil {
		return StateNew, err
	}
	if string(activated) == version {
		return StateActivated, nil
	}
	installed, err := l.storage.GetMeta(metaInstalled)
	if err != nil {
		return StateNew, err
	}
	if string(installed) == version {
		return StateInstalled, nil
	}
	return StateNew, nil
}

// Install precaches the manifest into the static partition. Every asset is
// attempted; failures are logged and reported but never fail the install.
func (l *Lifecycle) Install(ctx context.Context) (InstallReport, error) {
	report := InstallReport{Failed: make(map[string]error)}

	state, err := l.State()
	if err != nil {
		return report, err
	}
	if state != StateNew {
		return report, fmt.Errorf("%w: install while %s", ErrInvalidTransition, state)
	}

	static, err := l.storage.Open(l.registry.Name(KindStatic))
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(l.concurrency)
	for _, asset := range l.manifest {
		g.Go(func() error {
			err := l.precache(ctx, static, asset)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.logger.Warn("precache failed", "asset", asset, "error", err)
				report.Failed[asset] = err
				return nil
			}
			report.Cached++
			return nil
		})
	}
	_ = g.Wait()

	if err := l.storage.PutMeta(metaInstalled, []byte(l.registry.Version())); err != nil {
		return report, fmt.Errorf("record install: %w", err)
	}

	l.logger.Info("installed", "cached", report.Cached, "failed", len(report.Failed))
	return report, nil
}

func (l *Lifecycle) precache(ctx context.Context, static *Partition, asset string) error {
	ref, err := url.Parse(asset)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.origin.ResolveReference(ref).String(), nil)
	if err != nil {
		return err
	}
	resp, err := fetch(l.transport, req)
	if err != nil {
		return err
	}
	if !ok(resp) {
		resp.Body.Close()
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	resp, err = store(static, req, resp, nil)
	if resp != nil {
		resp.Body.Close()
	}
	return err
}

// Activate deletes every partition the registry does not know, makes sure
// the current ones exist and claims open clients.
func (l *Lifecycle) Activate(ctx context.Context) (ActivateReport, error) {
	var report ActivateReport

	state, err := l.State()
	if err != nil {
		return report, err
	}
	if state != StateInstalled {
		return report, fmt.Errorf("%w: activate while %s", ErrInvalidTransition, state)
	}

	names, err := l.storage.Names()
	if err != nil {
		return report, fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if l.registry.Known(name) {
			continue
		}
		if _, err := l.storage.Delete(name); err != nil {
			return report, err
		}
		report.Deleted = append(report.Deleted, name)
	}
	sort.Strings(report.Deleted)

	for _, name := range l.registry.Names() {
		if _, err := l.storage.Open(name); err != nil {
			return report, err
		}
	}

	if err := l.storage.PutMeta(metaActivated, []byte(l.registry.Version())); err != nil {
		return report, fmt.Errorf("record activation: %w", err)
	}

	l.claimed.Store(true)

	l.logger.Info("activated", "deleted", report.Deleted)
	return report, nil
}

// Ensure runs whatever steps the current version still needs.
func (l *Lifecycle) Ensure(ctx context.Context) error {
	state, err := l.State()
	if err != nil {
		return err
	}
	if state == StateNew {
		if _, err := l.Install(ctx); err != nil {
			return err
		}
		state = StateInstalled
	}
	if state == StateInstalled {
		if _, err := l.Activate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SkipWaiting reports whether the current version is installed and takes
// over without waiting for older clients to go away.
func (l *Lifecycle) SkipWaiting() bool {
	state, err := l.State()
	return err == nil && state != StateNew
}

// Claimed reports whether the current version has been activated, here or
// by another process sharing the cache file. Once true it stays true.
func (l *Lifecycle) Claimed() bool {
	if l.claimed.Load() {
		return true
	}
	state, err := l.State()
	if err != nil || state != StateActivated {
		return false
	}
	l.claimed.Store(true)
	return true
}
