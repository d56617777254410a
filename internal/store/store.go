// Package store provides the durable local key-value storage used by the client.
//
// It replaces browser storage: one string key per entity kind holds a JSON document
// (the watchlist, the liked set, the session), and a second bucket holds metadata API
// responses with the time they were stored. Reads are served from an in-memory map
// that is promoted on access and written through on every update.
//
// An empty path opens a memory-only store with no persistence.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLocal   = []byte("local")
	bucketCatalog = []byte("catalog")
)

// ErrLocked is returned when another process holds the store file.
var ErrLocked = errors.New("local store is in use by another process")

// Local implements durable key-value storage on bbolt.
type Local struct {
	db   *bolt.DB
	path string

	mu    sync.RWMutex
	cache map[string][]byte
}

// Open opens or creates the store at path. An empty path selects memory-only mode.
func Open(path string) (*Local, error) {
	s := &Local{path: path, cache: make(map[string][]byte)}
	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLocal, bucketCatalog} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	s.db = db
	return s, nil
}

// Path returns the file backing the store, or "" in memory-only mode.
func (s *Local) Path() string { return s.path }

func (s *Local) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the raw value stored under key. ok is false when the key is absent.
func (s *Local) Get(key string) (value []byte, ok bool, err error) {
	return s.get(bucketLocal, key)
}

// Put stores value under key, replacing any previous value.
func (s *Local) Put(key string, value []byte) error {
	return s.set(bucketLocal, key, value)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Local) Delete(key string) error {
	return s.delete(bucketLocal, key)
}

// Keys lists the keys of the local bucket in byte order.
func (s *Local) Keys() ([]string, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var keys []string
		prefix := string(bucketLocal) + ":"
		for k := range s.cache {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, strings.TrimPrefix(k, prefix))
			}
		}
		sort.Strings(keys)
		return keys, nil
	}

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocal).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Catalog returns the metadata response cache view of the store.
func (s *Local) Catalog() *CatalogCache {
	return &CatalogCache{s: s}
}

func cacheKey(bucket []byte, key string) string {
	return string(bucket) + ":" + key
}

func (s *Local) get(bucket []byte, key string) ([]byte, bool, error) {
	ck := cacheKey(bucket, key)

	s.mu.RLock()
	if data, ok := s.cache[ck]; ok {
		s.mu.RUnlock()
		return clone(data), true, nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, false, nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if data == nil {
		return nil, false, nil
	}

	s.mu.Lock()
	s.cache[ck] = data
	s.mu.Unlock()

	return clone(data), true, nil
}

func (s *Local) set(bucket []byte, key string, value []byte) error {
	data := clone(value)

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucket).Put([]byte(key), data)
		})
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.cache[cacheKey(bucket, key)] = data
	s.mu.Unlock()
	return nil
}

func (s *Local) delete(bucket []byte, key string) error {
	s.mu.Lock()
	delete(s.cache, cacheKey(bucket, key))
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// CatalogCache stores metadata API responses with their fetch time.
type CatalogCache struct {
	s *Local
}

type catalogEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

// Get returns the cached body for key and when it was stored.
func (c *CatalogCache) Get(key string) ([]byte, time.Time, bool) {
	raw, ok, err := c.s.get(bucketCatalog, key)
	if err != nil || !ok {
		return nil, time.Time{}, false
	}
	var entry catalogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, time.Time{}, false
	}
	return entry.Data, entry.StoredAt, true
}

// Put stores body under key. body must be valid JSON.
func (c *CatalogCache) Put(key string, body []byte, at time.Time) error {
	if !json.Valid(body) {
		return fmt.Errorf("catalog cache: body for %s is not valid JSON", key)
	}
	raw, err := json.Marshal(catalogEntry{StoredAt: at.UTC(), Data: body})
	if err != nil {
		return err
	}
	return c.s.set(bucketCatalog, key, raw)
}

// Purge removes entries stored before cutoff and returns how many were removed.
func (c *CatalogCache) Purge(cutoff time.Time) (int, error) {
	var stale []string

	if c.s.db == nil {
		c.s.mu.RLock()
		prefix := string(bucketCatalog) + ":"
		for k, v := range c.s.cache {
			if strings.HasPrefix(k, prefix) && storedBefore(v, cutoff) {
				stale = append(stale, strings.TrimPrefix(k, prefix))
			}
		}
		c.s.mu.RUnlock()
	} else {
		err := c.s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketCatalog).ForEach(func(k, v []byte) error {
				if storedBefore(v, cutoff) {
					stale = append(stale, string(k))
				}
				return nil
			})
		})
		if err != nil {
			return 0, fmt.Errorf("failed to scan catalog cache: %w", err)
		}
	}

	for _, key := range stale {
		if err := c.s.delete(bucketCatalog, key); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func storedBefore(raw []byte, cutoff time.Time) bool {
	var entry catalogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return true
	}
	return entry.StoredAt.Before(cutoff)
}
