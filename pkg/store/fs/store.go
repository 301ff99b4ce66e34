// Package fs provides a filesystem-backed chunk store implementation.
package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// Store is a filesystem-backed implementation of store.Store.
// Payloads are stored as files sharded by the first two hash characters:
//
//	{basePath}/ab/abcdef...
//
// Sharding keeps directory fan-out bounded for large chunk counts.
type Store struct {
	mu       sync.RWMutex
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

// Config holds configuration for the filesystem chunk store.
type Config struct {
	// BasePath is the root directory for chunk storage.
	BasePath string

	// CreateDir creates the base directory if it doesn't exist.
	// Default: true
	CreateDir bool

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// New creates a new filesystem chunk store with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}

	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Store{
		basePath: cfg.BasePath,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// NewWithPath creates a new filesystem chunk store with default configuration.
func NewWithPath(basePath string) (*Store, error) {
	return New(DefaultConfig(basePath))
}

// BasePath returns the root directory of the store.
func (s *Store) BasePath() string {
	return s.basePath
}

// chunkPath returns the sharded filesystem path for a hash.
func (s *Store) chunkPath(hash chunk.Hash) string {
	h := string(hash)
	return filepath.Join(s.basePath, h[:2], h)
}

// Put writes a chunk payload, validating its digest first.
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

	path := s.chunkPath(hash)

	// Idempotent re-put: the payload under an existing hash is by
	// definition identical, digest validation above proved it.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return err
	}

	// Write to a temporary file first, then rename for atomicity
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, s.fileMode); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}

	return nil
}

// Get reads a chunk payload.
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

	data, err := os.ReadFile(s.chunkPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrChunkNotFound
		}
		return nil, err
	}

	return data, nil
}

// Delete removes a chunk payload. Absent chunks are a no-op success.
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

	path := s.chunkPath(hash)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Drop the shard directory if it became empty; ignore failures, the
	// next sweep will retry.
	os.Remove(filepath.Dir(path))

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

	shards, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Name() < shards[j].Name() })

	page := &store.Page{}
	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 {
			continue
		}
		// Skip shards that cannot contain matching hashes.
		if prefix != "" && !shardMatches(shard.Name(), prefix) {
			continue
		}
		if token != "" && shard.Name() < token[:2] {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(s.basePath, shard.Name()))
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && !strings.HasSuffix(e.Name(), ".tmp") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			if prefix != "" && !strings.HasPrefix(name, prefix) {
				continue
			}
			if token != "" && name <= token {
				continue
			}

			info, err := os.Stat(filepath.Join(s.basePath, shard.Name(), name))
			if err != nil {
				continue // raced with a concurrent delete
			}

			page.Chunks = append(page.Chunks, store.Info{
				Hash: chunk.Hash(name),
				Size: info.Size(),
				Tier: chunk.TierHot,
			})
			if len(page.Chunks) == limit {
				page.NextToken = name
				return page, nil
			}
		}
	}

	return page, nil
}

// shardMatches reports whether a two-character shard directory can contain
// hashes starting with prefix.
func shardMatches(shard, prefix string) bool {
	if len(prefix) >= 2 {
		return shard == prefix[:2]
	}
	return strings.HasPrefix(shard, prefix)
}

// Stats walks the store and reports usage plus filesystem capacity.
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
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil // raced with a concurrent delete
		}
		stats.ChunkCount++
		stats.UsedBytes += uint64(info.Size())
		return nil
	})
	if err != nil {
		return nil, err
	}

	total, avail, err := fsUsage(s.basePath)
	if err == nil {
		stats.TotalBytes = total
		stats.AvailableBytes = avail
	}

	return stats, nil
}

// Close marks the store closed. Further operations fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// HealthCheck verifies the base directory is accessible and writable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}

	probe := filepath.Join(s.basePath, ".health")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
