package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBufferSize = 16

// OfflineModeChanged is published whenever the offline flag flips.
type OfflineModeChanged struct {
	Offline bool
	At      time.Time
}

// Events fans OfflineModeChanged out to every subscriber. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type Events struct {
	mu          sync.RWMutex
	subscribers map[string]chan OfflineModeChanged
	logger      *slog.Logger
}

func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		subscribers: make(map[string]chan OfflineModeChanged),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber until ctx is done, when its channel is
// closed.
func (e *Events) Subscribe(ctx context.Context) (<-chan OfflineModeChanged, string) {
	id := uuid.New().String()
	ch := make(chan OfflineModeChanged, subscriberBufferSize)

	e.mu.Lock()
	e.subscribers[id] = ch
	e.mu.Unlock()
	e.logger.Debug("subscriber added", "sub_id", id)

	go func() {
		<-ctx.Done()
		e.Unsubscribe(id)
	}()
	return ch, id
}

func (e *Events) Publish(event OfflineModeChanged) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
			e.logger.Debug("dropped event for slow subscriber", "sub_id", id)
		}
	}
}

func (e *Events) Unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.subscribers[id]
	if !ok {
		return
	}
	delete(e.subscribers, id)
	close(ch)
	e.logger.Debug("subscriber removed", "sub_id", id)
}

func (e *Events) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
	}
}
