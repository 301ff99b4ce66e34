package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/chunkvault/chunkvault/pkg/chunk"
)

// ============================================================================
// Run History
// ============================================================================

// RunStats are the counters accumulated by a collection run.
type RunStats struct {
	ChunksScanned  int64
	ChunksDeleted  int64
	BytesReclaimed int64
}

// CreateRun records the start of a collection run and returns its id.
func (l *Ledger) CreateRun(ctx context.Context, strategy, trigger, node string, dryRun bool) (*GCRun, error) {
	run := &GCRun{
		ID:        uuid.New().String(),
		Strategy:  strategy,
		Trigger:   trigger,
		Node:      node,
		StartedAt: l.now(),
		Status:    RunStatusRunning,
		DryRun:    dryRun,
	}
	if err := l.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun closes a run with its final status and counters.
func (l *Ledger) FinishRun(ctx context.Context, runID string, status RunStatus, stats RunStats, errMsg string) error {
	now := l.now()
	res := l.db.WithContext(ctx).Model(&GCRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"finished_at":     now,
			"status":          status,
			"chunks_scanned":  stats.ChunksScanned,
			"chunks_deleted":  stats.ChunksDeleted,
			"bytes_reclaimed": stats.BytesReclaimed,
			"error":           errMsg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun returns one run by id.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*GCRun, error) {
	var run GCRun
	err := l.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrRunNotFound)
	}
	return &run, nil
}

// ListRuns returns run history, most recent first.
func (l *Ledger) ListRuns(ctx context.Context, limit, offset int) ([]GCRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []GCRun
	err := l.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error
	return runs, err
}

// LastRun returns the most recently started run, or nil when none exist.
func (l *Ledger) LastRun(ctx context.Context) (*GCRun, error) {
	runs, err := l.ListRuns(ctx, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ============================================================================
// Audit Trail
// ============================================================================

// AppendAudit adds one append-only audit entry.
func (l *Ledger) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	return l.db.WithContext(ctx).Create(&entry).Error
}

// AuditForChunk returns a chunk's audit history, oldest first.
func (l *Ledger) AuditForChunk(ctx context.Context, hash chunk.Hash) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := l.db.WithContext(ctx).
		Where("chunk_hash = ?", string(hash)).
		Order("id").
		Find(&entries).Error
	return entries, err
}

// AuditForRun returns every decision made by one run, oldest first.
func (l *Ledger) AuditForRun(ctx context.Context, runID string) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := l.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id").
		Find(&entries).Error
	return entries, err
}
