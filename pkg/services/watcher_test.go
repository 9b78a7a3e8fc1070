package services

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/novels/pkg/data"
)

func TestSyncWatcher_PushesWhenConnectivityReturns(t *testing.T) {
	upstream := &progressServer{}
	server := httptest.NewServer(upstream)
	defer server.Close()

	var env *testEnv
	syncer := NewProgressSyncer(SyncerOptions{
		Origin: server.URL,
		Client: server.Client(),
		Progress: progressFunc(func(ctx context.Context, id string) (*data.Progress, error) {
			return env.repo.GetProgress(ctx, id)
		}),
		Offline: func() bool { return env.service.IsOfflineMode() },
	})
	env = newTestEnv(t, syncer)
	ctx, cancel := context.WithCancel(context.Background())

	env.service.SaveOfflineProgress(ctx, "b1", 3, "c3")
	env.service.SaveOfflineProgress(ctx, "b2", 7, "c7")

	var online atomic.Bool
	var probes atomic.Int32
	watcher := NewSyncWatcher(env.service, WatcherOptions{
		Connectivity: ConnectivityFunc(func(context.Context) bool {
			probes.Add(1)
			return online.Load()
		}),
		Interval: 5 * time.Millisecond,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return probes.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, upstream.posts(), "nothing is pushed while offline")

	online.Store(true)
	require.Eventually(t, func() bool { return upstream.posts() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, env.service.SetOfflineMode(true))
	require.NoError(t, env.service.SetOfflineMode(false))
	require.Eventually(t, func() bool { return upstream.posts() == 4 }, time.Second, time.Millisecond,
		"turning offline mode off pushes again")
}

func TestSyncAllOfflineProgress_WithoutSyncer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.service.SaveOfflineProgress(context.Background(), "b1", 1, "c1")
	assert.Equal(t, 0, env.service.SyncAllOfflineProgress(context.Background()))
}
