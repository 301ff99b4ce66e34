package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chunkvault/chunkvault/pkg/chunk"
)

// ============================================================================
// Reference Counting
// ============================================================================
//
// Every reference change runs in one transaction holding a row-level
// exclusive lock on the chunk row. The Reference row and RefCount move
// together or not at all. Batch operations lock chunks in ascending hash
// order so two concurrent batches cannot deadlock.

// RegisterChunk creates the ledger row for a newly stored chunk.
// Safe to call again for an existing hash (no-op, refreshes last access).
//
// Re-registering a soft-deleted hash restores the row: the caller has just
// stored the payload again, so the deletion mark is cleared and the chunk
// re-enters the pending set with a fresh grace deadline until something
// references it.
func (l *Ledger) RegisterChunk(ctx context.Context, hash chunk.Hash, size, compressedSize int64, tier chunk.StorageTier) error {
	if !hash.Valid() {
		return ErrChunkNotFound
	}
	if tier == "" {
		tier = chunk.TierHot
	}

	now := l.now()
	row := Chunk{
		Hash:           string(hash),
		Size:           size,
		CompressedSize: compressedSize,
		StorageTier:    string(tier),
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoUpdates: clause.Assignments(map[string]any{"last_accessed_at": now}),
		}).Create(&row).Error; err != nil {
			return err
		}

		existing, err := l.lockChunk(tx, hash)
		if err != nil {
			return err
		}
		if existing.DeletedAt == nil {
			return nil
		}

		deadline := now.Add(l.config.GracePeriod)
		updates := map[string]any{
			"deleted_at":         nil,
			"gc_protected_until": deadline,
		}
		if err := tx.Model(&Chunk{}).Where("hash = ?", string(hash)).Updates(updates).Error; err != nil {
			return err
		}

		if existing.RefCount == 0 {
			pending := PendingDeletion{
				ChunkHash:   string(hash),
				MarkedAt:    now,
				DeleteAfter: deadline,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pending).Error; err != nil {
				return err
			}
		}

		entry := AuditEntry{
			CreatedAt: now,
			ChunkHash: string(hash),
			Size:      existing.Size,
			Action:    ActionRecovered,
			Reason:    "payload rewritten after deletion",
		}
		return tx.Create(&entry).Error
	})
}

// GetChunk returns the ledger row for a hash, soft-deleted rows included.
func (l *Ledger) GetChunk(ctx context.Context, hash chunk.Hash) (*Chunk, error) {
	var row Chunk
	err := l.db.WithContext(ctx).First(&row, "hash = ?", string(hash)).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrChunkNotFound)
	}
	return &row, nil
}

// TouchChunk updates a chunk's last access time (read path).
func (l *Ledger) TouchChunk(ctx context.Context, hash chunk.Hash) error {
	return l.db.WithContext(ctx).Model(&Chunk{}).
		Where("hash = ?", string(hash)).
		Update("last_accessed_at", l.now()).Error
}

// IncrementReference registers that src depends on the chunk.
//
// Returns true when a new Reference row was created and the count moved.
// Re-registering an existing (hash, kind, id) triple is a no-op returning
// false: one source contributes at most 1 to the count.
//
// If the chunk was awaiting deletion the registration resurrects it: the
// grace protection and pending-deletion mark are cleared in the same
// transaction, and an audit entry records the resurrection.
func (l *Ledger) IncrementReference(ctx context.Context, hash chunk.Hash, src chunk.Source) (bool, error) {
	if err := src.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	added := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		added, err = l.incrementLocked(tx, hash, src)
		return err
	})
	return added, err
}

// DecrementReference removes src's dependency on the chunk.
//
// Removing a reference that does not exist is an idempotent no-op.
// Returns the chunk's reference count after the operation. When the count
// reaches zero the chunk enters its grace period: GCProtectedUntil is set
// and a PendingDeletion row is created, all in the same transaction.
func (l *Ledger) DecrementReference(ctx context.Context, hash chunk.Hash, src chunk.Source) (int64, error) {
	if err := src.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	var refCount int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		refCount, err = l.decrementLocked(tx, hash, src)
		return err
	})
	return refCount, err
}

// BatchRef pairs a chunk hash with a reference source for batch operations.
type BatchRef struct {
	Hash   chunk.Hash
	Source chunk.Source
}

// IncrementReferences registers many references in one transaction.
// Chunks are locked in ascending hash order. Returns how many references
// were actually created (duplicates are skipped, not errors).
func (l *Ledger) IncrementReferences(ctx context.Context, refs []BatchRef) (int64, error) {
	for _, r := range refs {
		if err := r.Source.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
	}
	sortBatch(refs)

	var added int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range refs {
			ok, err := l.incrementLocked(tx, r.Hash, r.Source)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	return added, err
}

// DecrementReferences removes many references in one transaction.
// Chunks are locked in ascending hash order. Returns how many chunks
// dropped to zero references.
func (l *Ledger) DecrementReferences(ctx context.Context, refs []BatchRef) (int64, error) {
	for _, r := range refs {
		if err := r.Source.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
	}
	sortBatch(refs)

	var orphaned int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range refs {
			count, err := l.decrementLocked(tx, r.Hash, r.Source)
			if err != nil {
				return err
			}
			if count == 0 {
				orphaned++
			}
		}
		return nil
	})
	return orphaned, err
}

// References returns the live references for a chunk.
func (l *Ledger) References(ctx context.Context, hash chunk.Hash) ([]Reference, error) {
	var refs []Reference
	err := l.db.WithContext(ctx).
		Where("chunk_hash = ?", string(hash)).
		Order("source_kind, source_id").
		Find(&refs).Error
	return refs, err
}

// ============================================================================
// Internals
// ============================================================================

// incrementLocked is the increment body; runs inside the caller's transaction.
func (l *Ledger) incrementLocked(tx *gorm.DB, hash chunk.Hash, src chunk.Source) (bool, error) {
	row, err := l.lockChunk(tx, hash)
	if err != nil {
		return false, err
	}
	if row.DeletedAt != nil {
		// The payload is gone; callers must re-Put before referencing.
		return false, ErrChunkDeleted
	}

	ref := Reference{
		ChunkHash:    string(hash),
		SourceKind:   string(src.Kind),
		SourceID:     src.ID,
		RepositoryID: src.RepositoryID,
		CreatedAt:    l.now(),
	}
	if err := tx.Create(&ref).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Same source registered twice: contributes at most 1.
			return false, nil
		}
		return false, err
	}

	wasPending := row.GCProtectedUntil != nil

	updates := map[string]any{
		"ref_count":          gorm.Expr("ref_count + 1"),
		"last_accessed_at":   l.now(),
		"gc_protected_until": nil,
	}
	if err := tx.Model(&Chunk{}).Where("hash = ?", string(hash)).Updates(updates).Error; err != nil {
		return false, err
	}

	if wasPending {
		if err := tx.Delete(&PendingDeletion{}, "chunk_hash = ?", string(hash)).Error; err != nil {
			return false, err
		}
		entry := AuditEntry{
			CreatedAt: l.now(),
			ChunkHash: string(hash),
			Size:      row.Size,
			Action:    ActionResurrected,
			Sources:   encodeSources([]chunk.Source{src}),
			Reason:    "re-referenced during grace period",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return false, err
		}
	}

	return true, nil
}

// decrementLocked is the decrement body; runs inside the caller's transaction.
func (l *Ledger) decrementLocked(tx *gorm.DB, hash chunk.Hash, src chunk.Source) (int64, error) {
	row, err := l.lockChunk(tx, hash)
	if errors.Is(err, ErrChunkNotFound) {
		// Nothing to decrement; treat like a missing reference.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	res := tx.Where(
		"chunk_hash = ? AND source_kind = ? AND source_id = ?",
		string(hash), string(src.Kind), src.ID,
	).Delete(&Reference{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// Reference never existed or was already removed.
		return row.RefCount, nil
	}

	newCount := row.RefCount - 1
	if newCount < 0 {
		newCount = 0
	}

	updates := map[string]any{"ref_count": newCount}

	var protectedUntil time.Time
	if newCount == 0 {
		protectedUntil = l.now().Add(l.config.GracePeriod)
		updates["gc_protected_until"] = protectedUntil
	}

	if err := tx.Model(&Chunk{}).Where("hash = ?", string(hash)).Updates(updates).Error; err != nil {
		return 0, err
	}

	if newCount == 0 {
		pending := PendingDeletion{
			ChunkHash:   string(hash),
			MarkedAt:    l.now(),
			DeleteAfter: protectedUntil,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pending).Error; err != nil {
			return 0, err
		}
		entry := AuditEntry{
			CreatedAt: l.now(),
			ChunkHash: string(hash),
			Size:      row.Size,
			Action:    ActionMarked,
			Sources:   encodeSources([]chunk.Source{src}),
			Reason:    "last reference removed",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return 0, err
		}
	}

	return newCount, nil
}

// lockChunk loads a chunk row under a row-level exclusive lock.
//
// SQLite has no SELECT FOR UPDATE; its single-writer model already
// serializes the surrounding transaction, so the clause is Postgres-only.
func (l *Ledger) lockChunk(tx *gorm.DB, hash chunk.Hash) (*Chunk, error) {
	q := tx
	if l.rowLocks {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row Chunk
	err := q.First(&row, "hash = ?", string(hash)).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrChunkNotFound)
	}
	return &row, nil
}

// sortBatch orders refs by hash so batch transactions lock in a stable order.
func sortBatch(refs []BatchRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Hash < refs[j].Hash })
}

// encodeSources renders reference sources as JSON for audit entries.
func encodeSources(sources []chunk.Source) string {
	if len(sources) == 0 {
		return ""
	}
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.String()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return ""
	}
	return string(data)
}
