package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ============================================================================
// Scheduler State
// ============================================================================
//
// The state row is shared by all nodes and must only be read or written
// while holding the coordination lock; the ledger does not enforce that,
// the scheduler does.

// GetSchedulerState returns the singleton state row, creating it on first use.
func (l *Ledger) GetSchedulerState(ctx context.Context) (*SchedulerState, error) {
	var state SchedulerState
	err := l.db.WithContext(ctx).First(&state, "id = ?", schedulerStateID).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	state = SchedulerState{ID: schedulerStateID}
	if err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// RecordRunTimes updates the last-run and next-scheduled timestamps.
func (l *Ledger) RecordRunTimes(ctx context.Context, lastRun time.Time, nextScheduled time.Time) error {
	if _, err := l.GetSchedulerState(ctx); err != nil {
		return err
	}
	return l.db.WithContext(ctx).Model(&SchedulerState{}).
		Where("id = ?", schedulerStateID).
		Updates(map[string]any{
			"last_run_at":       lastRun,
			"next_scheduled_at": nextScheduled,
		}).Error
}
