package store

import "errors"

// Common errors returned by Store implementations.
var (
	// ErrChunkNotFound is returned when a requested chunk doesn't exist.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrHashMismatch is returned by Put when the payload's digest does not
	// match the supplied hash. Nothing is stored; this guards against both
	// corruption in transit and caller misuse.
	ErrHashMismatch = errors.New("payload digest does not match hash")

	// ErrInvalidHash is returned when a hash is not a well-formed content hash.
	ErrInvalidHash = errors.New("invalid chunk hash")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)
