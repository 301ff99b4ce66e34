package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chunkvault/chunkvault/pkg/chunk"
)

// ============================================================================
// Collection Support
// ============================================================================
//
// Candidate selection reads the pending_deletions table: a chunk only
// becomes a candidate by being explicitly marked (decrement to zero, or a
// sweep finding it unreachable). An emergency halt clears the pending set,
// so nothing is eligible again until it is re-marked.

// Candidate is a chunk eligible for deletion, pending final revalidation.
type Candidate struct {
	Hash     chunk.Hash
	Size     int64
	MarkedAt time.Time
}

// CandidateQuery bounds a candidate selection.
type CandidateQuery struct {
	// Limit caps the batch size. Required.
	Limit int

	// GraceOverride, when positive, replaces the recorded grace deadline:
	// a chunk is eligible once now - marked_at >= GraceOverride. Used only
	// by pressure-triggered runs.
	GraceOverride time.Duration

	// MinAge / MaxAge bound the chunk's age (now - created_at).
	// Zero means unbounded. Used by the generational strategy.
	MinAge time.Duration
	MaxAge time.Duration

	// AfterHash resumes selection past a previous batch: only chunks whose
	// hash sorts after it are returned. Results are hash-ordered, so a
	// caller can page through the pending set without revisiting chunks it
	// already handled, whether or not those chunks were deleted.
	AfterHash chunk.Hash
}

// ExpiredPending returns chunks whose grace period has elapsed, ordered by
// hash so AfterHash can page through the set. Soft-deleted and
// re-referenced chunks are excluded.
func (l *Ledger) ExpiredPending(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	now := l.now()

	db := l.db.WithContext(ctx).
		Table("pending_deletions").
		Select("pending_deletions.chunk_hash, pending_deletions.marked_at, chunks.size").
		Joins("JOIN chunks ON chunks.hash = pending_deletions.chunk_hash").
		Where("chunks.deleted_at IS NULL").
		Where("chunks.ref_count = 0")

	if q.GraceOverride > 0 {
		db = db.Where("pending_deletions.marked_at <= ?", now.Add(-q.GraceOverride))
	} else {
		db = db.Where("pending_deletions.delete_after <= ?", now)
	}

	if q.MinAge > 0 {
		db = db.Where("chunks.created_at <= ?", now.Add(-q.MinAge))
	}
	if q.MaxAge > 0 {
		db = db.Where("chunks.created_at > ?", now.Add(-q.MaxAge))
	}
	if q.AfterHash != "" {
		db = db.Where("pending_deletions.chunk_hash > ?", string(q.AfterHash))
	}

	var rows []struct {
		ChunkHash string
		MarkedAt  time.Time
		Size      int64
	}
	err := db.Order("pending_deletions.chunk_hash").
		Limit(q.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(rows))
	for i, r := range rows {
		candidates[i] = Candidate{
			Hash:     chunk.Hash(r.ChunkHash),
			Size:     r.Size,
			MarkedAt: r.MarkedAt,
		}
	}
	return candidates, nil
}

// MarkUnreachable puts a chunk the sweep found unreachable into the pending
// set with a fresh grace deadline. Marking an already-pending chunk is a
// no-op, so the grace window runs from the first sighting.
//
// An unreachable chunk whose ref_count is still positive has stale
// references (a counting bug): those rows are removed and the count reset
// to zero in the same transaction, which is what lets the sweep self-heal
// counters it does not trust.
func (l *Ledger) MarkUnreachable(ctx context.Context, hash chunk.Hash, runID string) error {
	now := l.now()
	deadline := now.Add(l.config.GracePeriod)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := l.lockChunk(tx, hash)
		if err != nil {
			return err
		}
		if row.DeletedAt != nil {
			return nil
		}

		if row.RefCount != 0 {
			if err := tx.Delete(&Reference{}, "chunk_hash = ?", string(hash)).Error; err != nil {
				return err
			}
			if err := tx.Model(&Chunk{}).Where("hash = ?", string(hash)).
				Update("ref_count", 0).Error; err != nil {
				return err
			}
		}

		pending := PendingDeletion{
			ChunkHash:   string(hash),
			MarkedAt:    now,
			DeleteAfter: deadline,
			RunID:       &runID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pending)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already pending, original deadline holds
		}

		if row.GCProtectedUntil == nil {
			if err := tx.Model(&Chunk{}).Where("hash = ?", string(hash)).
				Update("gc_protected_until", deadline).Error; err != nil {
				return err
			}
		}

		reason := "unreachable from any root"
		if row.RefCount != 0 {
			reason = "unreachable from any root, stale references cleared"
		}
		entry := AuditEntry{
			CreatedAt: now,
			RunID:     runID,
			ChunkHash: string(hash),
			Size:      row.Size,
			Action:    ActionMarked,
			Reason:    reason,
		}
		return tx.Create(&entry).Error
	})
}

// Revalidate re-checks a candidate under a fresh lock immediately before
// deletion. Returns the chunk row and whether deletion may proceed: the
// chunk must still have zero references, be past its grace deadline, and
// not already be deleted. A false result with a nil error means the chunk
// was resurrected or is still protected; the caller skips it.
func (l *Ledger) Revalidate(ctx context.Context, hash chunk.Hash, graceOverride time.Duration) (*Chunk, bool, error) {
	var row *Chunk
	eligible := false

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = l.lockChunk(tx, hash)
		if err != nil {
			return err
		}

		if row.DeletedAt != nil || row.RefCount != 0 {
			return nil
		}

		now := l.now()
		if graceOverride > 0 {
			var pending PendingDeletion
			err := tx.First(&pending, "chunk_hash = ?", string(hash)).Error
			if err != nil {
				return convertNotFoundError(err, nil)
			}
			eligible = !pending.MarkedAt.After(now.Add(-graceOverride))
			return nil
		}

		eligible = row.GCProtectedUntil != nil && !row.GCProtectedUntil.After(now)
		return nil
	})
	if errors.Is(err, ErrChunkNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return row, eligible, nil
}

// SoftDelete records that a chunk's payload was physically removed.
// The ref_count guard makes the operation refuse chunks that were
// re-referenced between revalidation and now.
func (l *Ledger) SoftDelete(ctx context.Context, hash chunk.Hash) error {
	now := l.now()

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Chunk{}).
			Where("hash = ? AND ref_count = 0 AND deleted_at IS NULL", string(hash)).
			Update("deleted_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrChunkNotFound
		}

		return tx.Delete(&PendingDeletion{}, "chunk_hash = ?", string(hash)).Error
	})
}

// Recover clears a chunk's soft delete while its row still exists.
// The payload itself is gone; the caller must re-Put it. The recovered
// row re-enters the pending set with a fresh grace deadline so it is not
// instantly collected again.
func (l *Ledger) Recover(ctx context.Context, hash chunk.Hash) error {
	now := l.now()
	deadline := now.Add(l.config.GracePeriod)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := l.lockChunk(tx, hash)
		if errors.Is(err, ErrChunkNotFound) {
			return ErrNotRecoverable
		}
		if err != nil {
			return err
		}
		if row.DeletedAt == nil {
			return nil // nothing to recover
		}

		updates := map[string]any{
			"deleted_at":         nil,
			"gc_protected_until": deadline,
		}
		if err := tx.Model(&Chunk{}).Where("hash = ?", string(hash)).Updates(updates).Error; err != nil {
			return err
		}

		if row.RefCount == 0 {
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
			Size:      row.Size,
			Action:    ActionRecovered,
			Reason:    "operator recovery",
		}
		return tx.Create(&entry).Error
	})
}

// PurgeExpired removes soft-deleted ledger rows whose recovery window has
// elapsed. Returns how many rows were purged.
func (l *Ledger) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := l.now().Add(-l.config.RecoveryWindow)

	var purged int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []Chunk
		if err := tx.Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
			Find(&rows).Error; err != nil {
			return err
		}

		for _, row := range rows {
			if err := tx.Delete(&Chunk{}, "hash = ?", row.Hash).Error; err != nil {
				return err
			}
			entry := AuditEntry{
				CreatedAt: l.now(),
				ChunkHash: row.Hash,
				Size:      row.Size,
				Action:    ActionPurged,
				Reason:    "recovery window elapsed",
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}

// ============================================================================
// Emergency Halt
// ============================================================================

// Halt sets the persisted halted flag and clears the entire pending set.
// Nothing becomes eligible again until it is re-marked after a Resume.
func (l *Ledger) Halt(ctx context.Context, reason string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSchedulerFlag(tx, true); err != nil {
			return err
		}

		if err := tx.Where("1 = 1").Delete(&PendingDeletion{}).Error; err != nil {
			return err
		}

		entry := AuditEntry{
			CreatedAt: l.now(),
			Action:    ActionHalt,
			Reason:    reason,
		}
		return tx.Create(&entry).Error
	})
}

// Resume clears the halted flag. Previously pending chunks stay
// uncollectable until a decrement or sweep marks them again.
func (l *Ledger) Resume(ctx context.Context) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSchedulerFlag(tx, false); err != nil {
			return err
		}

		entry := AuditEntry{
			CreatedAt: l.now(),
			Action:    ActionResume,
			Reason:    "collection resumed",
		}
		return tx.Create(&entry).Error
	})
}

// IsHalted reports the persisted halted flag.
func (l *Ledger) IsHalted(ctx context.Context) (bool, error) {
	state, err := l.GetSchedulerState(ctx)
	if err != nil {
		return false, err
	}
	return state.Halted, nil
}

// ============================================================================
// Status Queries
// ============================================================================

// PendingCount returns how many chunks are awaiting deletion, eligible or not.
func (l *Ledger) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&PendingDeletion{}).Count(&count).Error
	return count, err
}

// ReclaimableBytes sums the sizes of chunks whose grace period has elapsed.
func (l *Ledger) ReclaimableBytes(ctx context.Context) (int64, error) {
	var total *int64
	err := l.db.WithContext(ctx).
		Table("pending_deletions").
		Joins("JOIN chunks ON chunks.hash = pending_deletions.chunk_hash").
		Where("chunks.deleted_at IS NULL AND chunks.ref_count = 0").
		Where("pending_deletions.delete_after <= ?", l.now()).
		Select("SUM(chunks.size)").
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

// ChunkCount returns how many live (not soft-deleted) chunk rows exist.
func (l *Ledger) ChunkCount(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&Chunk{}).
		Where("deleted_at IS NULL").Count(&count).Error
	return count, err
}

// upsertSchedulerFlag writes the halted flag on the singleton state row,
// creating the row if this is the first state access.
func upsertSchedulerFlag(tx *gorm.DB, halted bool) error {
	state := SchedulerState{ID: schedulerStateID, Halted: halted}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"halted": halted}),
	}).Create(&state).Error
}
