package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kerbaras/novels/pkg/cache"
	"github.com/kerbaras/novels/pkg/config"
	"github.com/kerbaras/novels/pkg/data"
	"github.com/kerbaras/novels/pkg/sources"
)

// Controller wires the offline store, the request cache and the platform
// client from one configuration.
type Controller struct {
	cfg        *config.Config
	handle     *data.StorageHandle
	storage    *cache.Storage
	registry   *cache.Registry
	router     *cache.Router
	lifecycle  *cache.Lifecycle
	offline    *OfflineService
	watcher    *SyncWatcher
	downloader *Downloader
	source     sources.Source
	logger     *slog.Logger
}

type ControllerOptions struct {
	// Transport is the real network; http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

func NewController(cfg *config.Config, opts ControllerOptions) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	network := opts.Transport
	if network == nil {
		network = http.DefaultTransport
	}

	registry := cache.NewRegistry(cfg.Cache.Prefix, cfg.Cache.Version)
	c := &Controller{cfg: cfg, registry: registry, logger: logger}

	// A running serve holds the cache file. Everything but the cache
	// itself still works without it.
	storage, err := cache.OpenStorage(cfg.Cache.Path)
	switch {
	case errors.Is(err, cache.ErrStorageLocked):
		logger.Warn("request cache in use, continuing without it", "path", cfg.Cache.Path)
	case err != nil:
		return nil, fmt.Errorf("open cache: %w", err)
	default:
		if err := c.openCache(storage, network); err != nil {
			storage.Close()
			return nil, err
		}
	}

	handle := data.NewStorageHandle(cfg.Store.Path, data.WithLogger(logger))
	repo := data.NewRepository(handle)
	direct := &http.Client{Transport: network}

	var offline *OfflineService
	syncer := NewProgressSyncer(SyncerOptions{
		Origin:       cfg.Origin(),
		Client:       direct,
		Progress:     repo,
		Connectivity: NewHeadProbe(cfg.Origin(), direct),
		Offline:      func() bool { return offline.IsOfflineMode() },
		Logger:       logger,
	})
	var meta MetaStore
	if c.storage != nil {
		meta = c.storage
	}
	offline = NewOfflineService(OfflineOptions{
		Repository: repo,
		Meta:       meta,
		Syncer:     syncer,
		Files:      []string{cfg.Store.Path, cfg.Store.Path + ".wal", cfg.Cache.Path},
		Quota:      cfg.Store.QuotaBytes,
		Logger:     logger,
	})

	platform := direct
	if c.router != nil {
		platform = &http.Client{Transport: c.router}
	}
	source := sources.NewPlatform(cfg.Origin(), platform)

	c.handle = handle
	c.offline = offline
	c.source = source
	c.watcher = NewSyncWatcher(offline, WatcherOptions{
		Connectivity: NewHeadProbe(cfg.Origin(), direct),
		Interval:     cfg.Sync.ProbeInterval,
		Logger:       logger,
	})
	c.downloader = NewDownloader(source, offline, DownloaderOptions{
		Concurrency: cfg.Download.Concurrency,
		Interval:    cfg.Download.Interval,
		Logger:      logger,
	})
	return c, nil
}

func (c *Controller) openCache(storage *cache.Storage, network http.RoundTripper) error {
	router, err := cache.NewRouter(cache.RouterOptions{
		Origin:       c.cfg.Origin(),
		APIPrefix:    c.cfg.Platform.APIPrefix,
		CDNHosts:     c.cfg.Cache.CDNHosts,
		OfflineShell: c.cfg.Cache.OfflineShell,
		Registry:     c.registry,
		Storage:      storage,
		Transport:    network,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	lifecycle, err := cache.NewLifecycle(cache.LifecycleOptions{
		Registry:  c.registry,
		Storage:   storage,
		Transport: network,
		Origin:    c.cfg.Origin(),
		Manifest:  c.cfg.Cache.Manifest,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.storage, c.router, c.lifecycle = storage, router, lifecycle
	return nil
}

// RequireCache fails when the request cache could not be opened, which
// commands that serve or prepare it cannot do without.
func (c *Controller) RequireCache() error {
	if c.storage == nil {
		return fmt.Errorf("request cache %s: %w", c.cfg.Cache.Path, cache.ErrStorageLocked)
	}
	return nil
}

func (c *Controller) Config() *config.Config { return c.cfg }
func (c *Controller) Offline() *OfflineService { return c.offline }
func (c *Controller) Router() *cache.Router { return c.router }
func (c *Controller) Lifecycle() *cache.Lifecycle { return c.lifecycle }
func (c *Controller) Registry() *cache.Registry { return c.registry }
func (c *Controller) Storage() *cache.Storage { return c.storage }
func (c *Controller) Downloader() *Downloader { return c.downloader }
func (c *Controller) Watcher() *SyncWatcher { return c.watcher }
func (c *Controller) StoreHandle() *data.StorageHandle { return c.handle }

// DownloadBook fetches bookID from the platform for offline reading.
func (c *Controller) DownloadBook(ctx context.Context, bookID string) error {
	return c.downloader.DownloadBook(ctx, bookID)
}

// Close waits for background cache work and releases both databases.
func (c *Controller) Close() error {
	if c.router != nil {
		c.router.Wait()
	}
	c.downloader.Close()
	c.offline.Events().Close()
	return errors.Join(c.handle.Close(), c.storage.Close())
}
