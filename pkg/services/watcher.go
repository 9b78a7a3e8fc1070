package services

import (
	"context"
	"log/slog"
	"time"
)

const defaultProbeInterval = 30 * time.Second

// SyncWatcher pushes saved progress when the reader comes back online:
// either the platform answers again after failing, or the user turns
// offline mode off.
type SyncWatcher struct {
	offline      *OfflineService
	connectivity Connectivity
	interval     time.Duration
	logger       *slog.Logger
}

type WatcherOptions struct {
	Connectivity Connectivity
	Interval     time.Duration
	Logger       *slog.Logger
}

func NewSyncWatcher(offline *OfflineService, opts WatcherOptions) *SyncWatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	connectivity := opts.Connectivity
	if connectivity == nil {
		connectivity = ConnectivityFunc(func(context.Context) bool { return true })
	}
	return &SyncWatcher{
		offline:      offline,
		connectivity: connectivity,
		interval:     interval,
		logger:       logger.With("component", "sync-watcher"),
	}
}

// Run blocks until ctx is done.
func (w *SyncWatcher) Run(ctx context.Context) {
	events, _ := w.offline.Events().Subscribe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	online := w.connectivity.Online(ctx)
	w.logger.Debug("watching connectivity", "online", online, "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Offline {
				w.restored(ctx, "offline mode turned off")
			}
		case <-ticker.C:
			now := w.connectivity.Online(ctx)
			if now && !online {
				w.restored(ctx, "platform reachable again")
			}
			online = now
		}
	}
}

func (w *SyncWatcher) restored(ctx context.Context, reason string) {
	synced := w.offline.SyncAllOfflineProgress(ctx)
	w.logger.Info("connectivity restored, progress pushed", "reason", reason, "synced", synced)
}
