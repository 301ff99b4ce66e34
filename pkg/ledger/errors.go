package ledger

import "errors"

// Common errors returned by the ledger.
var (
	// ErrChunkNotFound is returned when no ledger row exists for a hash.
	ErrChunkNotFound = errors.New("chunk not found in ledger")

	// ErrRunNotFound is returned when a collection run id is unknown.
	ErrRunNotFound = errors.New("gc run not found")

	// ErrChunkDeleted is returned when an operation needs a live chunk but
	// the row is soft-deleted.
	ErrChunkDeleted = errors.New("chunk is deleted")

	// ErrNotRecoverable is returned by Recover when the soft-deleted row
	// has already been purged or never existed.
	ErrNotRecoverable = errors.New("chunk is not recoverable")

	// ErrInvalidSource is returned when a reference source fails validation.
	ErrInvalidSource = errors.New("invalid reference source")

	// ErrHalted is returned when collection work is attempted while the
	// emergency halt flag is set.
	ErrHalted = errors.New("garbage collection is halted")
)
