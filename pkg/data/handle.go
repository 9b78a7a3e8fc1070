package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle of a StorageHandle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Opener opens and upgrades the store at path.
type Opener func(path string) (*sql.DB, error)

// StorageHandle owns the single lazily opened offline store of a process.
//
// Closed -> Open on a successful open. A corrupt store is deleted and
// opened once more; when that fails too, or the failure is not a
// corruption, the handle becomes Unavailable and stays there.
type StorageHandle struct {
	mu       sync.Mutex
	path     string
	open     Opener
	remove   func(path string) error
	db       *sql.DB
	state    State
	recreate bool
	logger   *slog.Logger
}

type HandleOption func(*StorageHandle)

func WithOpener(open Opener) HandleOption {
	return func(h *StorageHandle) { h.open = open }
}

func WithRemover(remove func(path string) error) HandleOption {
	return func(h *StorageHandle) { h.remove = remove }
}

func WithLogger(logger *slog.Logger) HandleOption {
	return func(h *StorageHandle) { h.logger = logger }
}

func NewStorageHandle(path string, opts ...HandleOption) *StorageHandle {
	h := &StorageHandle{
		path:   path,
		open:   InitDuckDB,
		remove: removeDuckDB,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "offline-store", "path", path)
	return h
}

// Path returns the location of the database file.
func (h *StorageHandle) Path() string {
	return h.path
}

func (h *StorageHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// GetOrOpen returns the open database, opening it on first use. It returns
// ErrStorageUnavailable once the handle has given up.
func (h *StorageHandle) GetOrOpen() (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateOpen:
		return h.db, nil
	case StateUnavailable:
		return nil, ErrStorageUnavailable
	}

	if h.recreate {
		h.recreate = false
		return h.recreateLocked(nil)
	}

	db, err := h.open(h.path)
	if err == nil {
		h.db, h.state = db, StateOpen
		return db, nil
	}
	if !IsCorruption(err) {
		if errors.Is(err, ErrSchemaVersion) {
			h.logger.Error("offline store was written by a newer release, leaving it untouched", "error", err)
		} else {
			h.logger.Error("offline store failed to open", "error", err)
		}
		h.state = StateUnavailable
		return nil, ErrStorageUnavailable
	}
	return h.recreateLocked(err)
}

// recreateLocked deletes the store and makes exactly one more open attempt.
func (h *StorageHandle) recreateLocked(cause error) (*sql.DB, error) {
	h.logger.Warn("offline store unreadable, recreating", "error", cause)

	if err := h.remove(h.path); err != nil {
		h.logger.Error("delete offline store", "error", err)
	}

	db, err := h.open(h.path)
	if err != nil {
		h.logger.Error("offline store unavailable after recreate", "error", err)
		h.state = StateUnavailable
		return nil, ErrStorageUnavailable
	}
	h.db, h.state = db, StateOpen
	return db, nil
}

// IsAvailable opens the store if needed and reports whether it is usable.
func (h *StorageHandle) IsAvailable() bool {
	_, err := h.GetOrOpen()
	return err == nil
}

// Fail reports an error seen on the open database. Corruption discards the
// live handle at once; the next GetOrOpen deletes and recreates the store.
func (h *StorageHandle) Fail(err error) {
	if !IsCorruption(err) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateOpen {
		return
	}

	h.logger.Warn("offline store reported corruption, discarding handle", "error", err)
	h.db.Close()
	h.db = nil
	h.state = StateClosed
	h.recreate = true
}

// Close releases the database. A closed handle reopens on next use; an
// unavailable one stays unavailable.
func (h *StorageHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateOpen {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	h.state = StateClosed
	return err
}

// MarkUnavailable forces the terminal state.
func (h *StorageHandle) MarkUnavailable() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		h.db.Close()
		h.db = nil
	}
	h.state = StateUnavailable
}
