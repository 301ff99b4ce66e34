// Package memory provides an in-memory chunk store for tests and development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// Store is an in-memory implementation of store.Store.
// Safe for concurrent use. Contents are lost when the process exits.
type Store struct {
	mu     sync.RWMutex
	chunks map[chunk.Hash][]byte
	closed bool
}

// New creates a new in-memory chunk store.
func New() *Store {
	return &Store{
		chunks: make(map[chunk.Hash][]byte),
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if _, ok := s.chunks[hash]; ok {
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	s.chunks[hash] = buf
	return nil
}

// Get returns a copy of a chunk's payload.
func (s *Store) Get(ctx context.Context, hash chunk.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	if !hash.Valid() {
		return nil, store.ErrInvalidHash
	}

	data, ok := s.chunks[hash]
	if !ok {
		return nil, store.ErrChunkNotFound
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete removes a chunk. Absent chunks are a no-op success.
func (s *Store) Delete(ctx context.Context, hash chunk.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if !hash.Valid() {
		return store.ErrInvalidHash
	}

	delete(s.chunks, hash)
	return nil
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

	hashes := make([]string, 0, len(s.chunks))
	for h := range s.chunks {
		hs := string(h)
		if prefix != "" && !strings.HasPrefix(hs, prefix) {
			continue
		}
		if token != "" && hs <= token {
			continue
		}
		hashes = append(hashes, hs)
	}
	sort.Strings(hashes)

	page := &store.Page{}
	for _, hs := range hashes {
		page.Chunks = append(page.Chunks, store.Info{
			Hash: chunk.Hash(hs),
			Size: int64(len(s.chunks[chunk.Hash(hs)])),
			Tier: chunk.TierHot,
		})
		if len(page.Chunks) == limit {
			page.NextToken = hs
			break
		}
	}

	return page, nil
}

// Stats reports the chunk count and bytes held in memory.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}

	stats := &store.Stats{ChunkCount: uint64(len(s.chunks))}
	for _, data := range s.chunks {
		stats.UsedBytes += uint64(len(data))
	}
	return stats, nil
}

// Close marks the store closed and releases its contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.chunks = nil
	return nil
}

// HealthCheck reports whether the store is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}
