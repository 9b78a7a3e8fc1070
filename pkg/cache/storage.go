package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var (
	partitionsBucket = []byte("partitions")
	metaBucket       = []byte("meta")
)

// ErrStorageLocked means another process, usually serve, holds the cache
// file.
var ErrStorageLocked = errors.New("cache file is locked by another process")

const lockTimeout = time.Second

// Storage holds the named cache partitions in a BoltDB file. Each
// partition is a nested bucket under "partitions"; small process-wide
// flags live in "meta".
type Storage struct {
	db   *bbolt.DB
	path string
}

func OpenStorage(path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("open cache db %s: %w", cleanPath, ErrStorageLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{partitionsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create %s bucket: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, path: cleanPath}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) Path() string {
	return s.path
}

// Open returns the partition called name, creating it if needed.
func (s *Storage) Open(name string) (*Partition, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.Bucket(partitionsBucket).CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", name, err)
	}
	return &Partition{storage: s, name: name}, nil
}

// Names lists every partition in the file.
func (s *Storage) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(partitionsBucket).ForEachBucket(func(k []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Delete drops a partition. It reports false when none existed.
func (s *Storage) Delete(name string) (bool, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(partitionsBucket).DeleteBucket([]byte(name))
	})
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	return true, nil
}

// GetMeta returns nil when key is unset.
func (s *Storage) GetMeta(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(metaBucket).Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (s *Storage) PutMeta(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte(key), value)
	})
}

// Partition is a named collection of cached responses.
type Partition struct {
	storage *Storage
	name    string
}

func (p *Partition) Name() string {
	return p.name
}

// Match returns the stored entry for req, or nil on a miss.
func (p *Partition) Match(req *http.Request) (*Entry, error) {
	var entry *Entry
	err := p.storage.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(partitionsBucket).Bucket([]byte(p.name))
		if bucket == nil {
			return nil
		}
		payload := bucket.Get([]byte(Key(req)))
		if payload == nil {
			return nil
		}
		entry = &Entry{}
		if err := json.Unmarshal(payload, entry); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("match %s in %s: %w", Key(req), p.name, err)
	}
	return entry, nil
}

// Put stores entry under req's key. The key is removed from every other
// partition in the same transaction, so it lives in one partition only.
func (p *Partition) Put(req *http.Request, entry *Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	key := []byte(Key(req))

	return p.storage.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(partitionsBucket)
		var others [][]byte
		_ = root.ForEachBucket(func(name []byte) error {
			if string(name) != p.name {
				others = append(others, append([]byte(nil), name...))
			}
			return nil
		})
		for _, name := range others {
			if err := root.Bucket(name).Delete(key); err != nil {
				return fmt.Errorf("evict %s from %s: %w", key, name, err)
			}
		}

		bucket, err := root.CreateBucketIfNotExists([]byte(p.name))
		if err != nil {
			return fmt.Errorf("open partition %s: %w", p.name, err)
		}
		return bucket.Put(key, payload)
	})
}

// Len counts the entries in the partition.
func (p *Partition) Len() (int, error) {
	n := 0
	err := p.storage.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(partitionsBucket).Bucket([]byte(p.name))
		if bucket == nil {
			return nil
		}
		n = bucket.Stats().KeyN
		return nil
	})
	return n, err
}

// lookup searches several partitions in order and returns the first hit.
// A key lives in one partition only, so the order only matters for speed.
type lookup []*Partition

func (l lookup) Match(req *http.Request) (*Entry, error) {
	var errs []error
	for _, p := range l {
		if p == nil {
			continue
		}
		entry, err := p.Match(req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, errors.Join(errs...)
}
