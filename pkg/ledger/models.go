package ledger

import (
	"time"
)

// RunStatus represents the lifecycle state of a collection run.
type RunStatus string

const (
	// RunStatusRunning is a run that has started and not yet finished.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted is a run that finished without a fatal error.
	// Per-chunk failures do not fail the run.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed is a run that aborted before completing.
	RunStatusFailed RunStatus = "failed"
)

// AuditAction identifies what a collection decision did to a chunk.
type AuditAction string

const (
	// ActionMarked records a chunk entering the pending-deletion set.
	ActionMarked AuditAction = "marked"
	// ActionDeleted records a physical deletion.
	ActionDeleted AuditAction = "deleted"
	// ActionResurrected records a pending chunk re-referenced before deletion.
	ActionResurrected AuditAction = "resurrected"
	// ActionSkipped records a candidate that failed revalidation.
	ActionSkipped AuditAction = "skipped"
	// ActionFailed records a per-chunk deletion failure.
	ActionFailed AuditAction = "failed"
	// ActionPurged records a soft-deleted row removed after its recovery window.
	ActionPurged AuditAction = "purged"
	// ActionRecovered records an operator recovery of a soft-deleted chunk.
	ActionRecovered AuditAction = "recovered"
	// ActionHalt records an emergency halt of collection.
	ActionHalt AuditAction = "halt"
	// ActionResume records collection being re-enabled after a halt.
	ActionResume AuditAction = "resume"
)

// Chunk is the ledger row for one content-addressed chunk.
//
// The payload itself lives in the chunk store; this row carries the
// reference count and the deletion lifecycle. RefCount always equals the
// number of live Reference rows for the hash; both are only ever changed
// together inside one transaction.
type Chunk struct {
	Hash           string    `gorm:"primaryKey;size:64" json:"hash"`
	Size           int64     `gorm:"not null" json:"size"`
	CompressedSize int64     `json:"compressed_size"`
	RefCount       int64     `gorm:"not null;default:0;index" json:"ref_count"`
	StorageTier    string    `gorm:"size:16;not null;default:hot" json:"storage_tier"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// DeletedAt marks the payload as physically deleted. The row is kept
	// for the recovery window, then purged. Deliberately *time.Time and
	// not gorm.DeletedAt: queries must see these rows.
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	// GCProtectedUntil is the end of the grace period that starts when
	// RefCount reaches zero. Nil while the chunk is referenced.
	GCProtectedUntil *time.Time `gorm:"index" json:"gc_protected_until,omitempty"`
}

// TableName returns the table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}

// Live reports whether the chunk's payload is still present (not soft-deleted).
func (c *Chunk) Live() bool {
	return c.DeletedAt == nil
}

// Reference records that a source object depends on a chunk.
//
// The (chunk_hash, source_kind, source_id) triple is unique: one source
// contributes at most 1 to the chunk's reference count, so re-registering
// the same reference is a no-op.
type Reference struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ChunkHash    string    `gorm:"size:64;not null;index;uniqueIndex:idx_reference_identity" json:"chunk_hash"`
	SourceKind   string    `gorm:"size:16;not null;uniqueIndex:idx_reference_identity" json:"source_kind"`
	SourceID     string    `gorm:"size:255;not null;uniqueIndex:idx_reference_identity" json:"source_id"`
	RepositoryID string    `gorm:"size:255;index" json:"repository_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Reference.
// "references" alone is a reserved word in PostgreSQL.
func (Reference) TableName() string {
	return "chunk_references"
}

// GCRun records one collection run, including dry runs.
type GCRun struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	Strategy       string     `gorm:"size:32;not null" json:"strategy"`
	Trigger        string     `gorm:"size:32" json:"trigger"`
	Node           string     `gorm:"size:255" json:"node"`
	StartedAt      time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         RunStatus  `gorm:"size:16;not null" json:"status"`
	ChunksScanned  int64      `json:"chunks_scanned"`
	ChunksDeleted  int64      `json:"chunks_deleted"`
	BytesReclaimed int64      `json:"bytes_reclaimed"`
	DryRun         bool       `json:"dry_run"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
}

// TableName returns the table name for GCRun.
func (GCRun) TableName() string {
	return "gc_runs"
}

// PendingDeletion is a chunk whose grace period is running.
//
// Rows are created when a decrement drops RefCount to zero (RunID nil) or
// when mark-and-sweep first sees an unreachable chunk (RunID set). A
// re-reference before DeleteAfter removes the row.
type PendingDeletion struct {
	ChunkHash   string    `gorm:"primaryKey;size:64" json:"chunk_hash"`
	MarkedAt    time.Time `gorm:"not null" json:"marked_at"`
	DeleteAfter time.Time `gorm:"not null;index" json:"delete_after"`
	RunID       *string   `gorm:"size:36" json:"run_id,omitempty"`
}

// TableName returns the table name for PendingDeletion.
func (PendingDeletion) TableName() string {
	return "pending_deletions"
}

// AuditEntry is one append-only record of a collection decision.
// Entries are never updated or deleted.
type AuditEntry struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	RunID     string      `gorm:"size:36;index" json:"run_id,omitempty"`
	ChunkHash string      `gorm:"size:64;index" json:"chunk_hash,omitempty"`
	Size      int64       `json:"size"`
	Action    AuditAction `gorm:"size:16;not null" json:"action"`

	// Sources is the JSON-encoded list of reference sources the chunk had
	// before the decision, for post-incident reconstruction.
	Sources string `gorm:"type:text" json:"sources,omitempty"`
	Reason  string `gorm:"type:text" json:"reason,omitempty"`
}

// TableName returns the table name for AuditEntry.
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// SchedulerState is the singleton scheduling record shared by all nodes.
// It is read and written only while holding the coordination lock.
type SchedulerState struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
	Halted          bool       `gorm:"not null;default:false" json:"halted"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SchedulerState.
func (SchedulerState) TableName() string {
	return "scheduler_state"
}

// schedulerStateID is the fixed primary key of the singleton row.
const schedulerStateID = 1

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Chunk{},
		&Reference{},
		&GCRun{},
		&PendingDeletion{},
		&AuditEntry{},
		&SchedulerState{},
	}
}
