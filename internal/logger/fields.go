package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so runs can be
// correlated in log aggregation and querying.
const (
	// ========================================================================
	// Correlation
	// ========================================================================
	KeyTraceID = "trace_id" // Request trace ID for correlation
	KeyRunID   = "run_id"   // Collection run identifier
	KeyNode    = "node"     // Node identity (lock owner, scheduler host)

	// ========================================================================
	// Chunk & Reference
	// ========================================================================
	KeyHash       = "hash"        // Chunk content hash
	KeySize       = "size"        // Chunk size in bytes
	KeyRefCount   = "ref_count"   // Current reference count
	KeySourceKind = "source_kind" // Reference source kind (commit, tag, ...)
	KeySourceID   = "source_id"   // Reference source identifier
	KeyTier       = "tier"        // Storage tier (hot, warm, cold, archive)

	// ========================================================================
	// Collection
	// ========================================================================
	KeyStrategy       = "strategy"        // GC strategy name
	KeyTrigger        = "trigger"         // What started the run (interval, pressure, manual, bulk)
	KeyDryRun         = "dry_run"         // Whether the run mutates state
	KeyScanned        = "scanned"         // Chunks examined
	KeyDeleted        = "deleted"         // Chunks physically deleted
	KeyBytesReclaimed = "bytes_reclaimed" // Bytes freed
	KeyBatch          = "batch"           // Batch size in effect

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // Operation name (put, get, delete, sweep, ...)
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyBackend    = "backend"     // Store backend: fs, s3, badger, memory
)

// Err is a convenience helper that converts an error into a structured
// logging field pair. Returns an empty attr for nil errors.
//
// Usage: logger.Error("operation failed", logger.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// AbbrevHash formats a chunk hash for logging, abbreviated to 12 characters
// to keep lines readable. Full hashes live in the audit log.
func AbbrevHash(hash string) slog.Attr {
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return slog.String(KeyHash, hash)
}

// OperationDuration creates a duration field pair from milliseconds.
func OperationDuration(ms float64) slog.Attr {
	return slog.String(KeyDurationMs, fmt.Sprintf("%.3f", ms))
}
