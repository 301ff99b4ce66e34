// Package badger provides a BadgerDB-backed chunk store implementation.
//
// Badger keeps large values in its value log rather than the LSM tree, which
// suits chunk payloads well. Deleting chunks only tombstones them until the
// value log is garbage collected, so long-running processes should call
// RunValueLogGC periodically.
package badger

import (
	"context"
	"errors"
	"strings"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// keyPrefix namespaces chunk payloads inside the database.
var keyPrefix = []byte("chunk/")

// Config holds configuration for the Badger chunk store.
type Config struct {
	// Path is the directory for the Badger database.
	// Ignored when InMemory is true.
	Path string

	// InMemory runs the database without persistence (tests, dev).
	InMemory bool

	// SyncWrites makes every write durable before returning.
	// Slower but safe against power loss. Default: false
	SyncWrites bool
}

// Store is a BadgerDB-backed implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	db     *badgerdb.DB
	ownsDB bool
	closed bool
}

// New opens a Badger database and returns a chunk store backed by it.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("path is required for a persistent store")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, ownsDB: true}, nil
}

// NewWithDB wraps an already-open Badger database.
// The caller keeps ownership; Close does not close the database.
func NewWithDB(db *badgerdb.DB) *Store {
	return &Store{db: db}
}

// chunkKey returns the database key for a hash.
func chunkKey(hash chunk.Hash) []byte {
	return append(append([]byte{}, keyPrefix...), hash...)
}

// Put stores a chunk payload, validating its digest first.
func (s *Store) Put(ctx context.Context, hash chunk.Hash, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !hash.Valid() {
		return store.ErrInvalidHash
	}
	if chunk.Sum(data) != hash {
		return store.ErrHashMismatch
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := chunkKey(hash)

		// Idempotent re-put: content under an existing hash is identical.
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}

		return txn.Set(key, data)
	})
}

// Get returns a chunk's payload.
func (s *Store) Get(ctx context.Context, hash chunk.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !hash.Valid() {
		return nil, store.ErrInvalidHash
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(chunkKey(hash))
		if err == badgerdb.ErrKeyNotFound {
			return store.ErrChunkNotFound
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Delete removes a chunk. Absent chunks are a no-op success.
func (s *Store) Delete(ctx context.Context, hash chunk.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !hash.Valid() {
		return store.ErrInvalidHash
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}

	// Badger's Delete is a no-op tombstone when the key is absent.
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(chunkKey(hash))
	})
}

// List returns one page of stored chunks ordered by hash.
func (s *Store) List(ctx context.Context, prefix string, token string, limit int) (*store.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	page := &store.Page{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = append(append([]byte{}, keyPrefix...), prefix...)

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := opts.Prefix
		if token != "" {
			// Seek just past the token key
			seek = append(chunkKey(chunk.Hash(token)), 0)
		}

		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), string(keyPrefix))
			h, err := chunk.ParseHash(name)
			if err != nil {
				continue
			}

			page.Chunks = append(page.Chunks, store.Info{
				Hash: h,
				Size: item.ValueSize(),
				Tier: chunk.TierHot,
			})
			if len(page.Chunks) == limit {
				it.Next()
				if it.ValidForPrefix(opts.Prefix) {
					page.NextToken = name
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// Stats reports chunk count and payload bytes. Capacity fields are zero;
// Badger grows with the filesystem it lives on.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}

	stats := &store.Stats{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			stats.ChunkCount++
			stats.UsedBytes += uint64(it.Item().ValueSize())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// RunValueLogGC reclaims space from deleted chunks in the value log.
// discardRatio follows Badger semantics (0.5 is a reasonable default).
// Returns badger.ErrNoRewrite when there is nothing to reclaim.
func (s *Store) RunValueLogGC(discardRatio float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	return s.db.RunValueLogGC(discardRatio)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// HealthCheck verifies the database is open and readable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}

	return s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte("health/probe"))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
