// Package store provides the chunk store interface for persistent storage
// of content-addressed chunk payloads.
package store

import (
	"context"

	"github.com/chunkvault/chunkvault/pkg/chunk"
)

// DefaultListLimit is the page size used when List is called with limit <= 0.
const DefaultListLimit = 1000

// Info describes a stored chunk as reported by List.
type Info struct {
	// Hash is the chunk's content hash (also its storage key).
	Hash chunk.Hash

	// Size is the stored payload size in bytes.
	Size int64

	// Tier is the storage tier the payload currently lives on.
	// Backends without tiering report TierHot.
	Tier chunk.StorageTier
}

// Page is one finite page of a List traversal.
type Page struct {
	// Chunks are the entries in this page, ordered by hash.
	Chunks []Info

	// NextToken restarts the traversal after the last entry of this page.
	// Empty when the traversal is complete.
	NextToken string
}

// Store defines the interface for chunk storage backends.
//
/// Chunks are immutable: a hash maps to exactly one payload forever. All
// backends validate on write that the payload's digest matches the supplied
// hash, so a stored chunk can always be trusted to match its key.
type Store interface {
	// Put stores a chunk's payload under its content hash.
	//
	// Put is idempotent: writing a payload under an already-present hash
	// succeeds as a no-op. Writing bytes whose digest does not match the
	// supplied hash fails with ErrHashMismatch and stores nothing.
	Put(ctx context.Context, hash chunk.Hash, data []byte) error

	// Get returns a chunk's payload.
	// Returns ErrChunkNotFound if no chunk with this hash is stored.
	Get(ctx context.Context, hash chunk.Hash) ([]byte, error)

	// Delete removes a chunk's payload.
	// Deleting an absent hash is a no-op success, so retries are safe.
	Delete(ctx context.Context, hash chunk.Hash) error

	// List returns one page of stored chunks whose hash starts with prefix,
	// ordered by hash. An empty token starts from the beginning; pass the
	// returned NextToken to continue. limit <= 0 uses DefaultListLimit.
	List(ctx context.Context, prefix string, token string, limit int) (*Page, error)

	// Stats returns storage statistics for capacity monitoring.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases any resources held by the store.
	Close() error

	// HealthCheck verifies the store is accessible and operational.
	HealthCheck(ctx context.Context) error
}

// Stats contains statistics about chunk storage.
//
// Backends that cannot determine a field cheaply report 0 for it; cloud
// backends report TotalBytes/AvailableBytes as 0 (effectively unbounded).
type Stats struct {
	// TotalBytes is the total storage capacity in bytes.
	TotalBytes uint64

	// UsedBytes is the space consumed by stored chunks in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining available space in bytes.
	AvailableBytes uint64

	// ChunkCount is the number of chunks stored.
	ChunkCount uint64
}
