// Package scheduler decides when collection runs.
//
// Four triggers feed the same execution path: a ticker interval, a
// storage-pressure probe, manual requests from the API or CLI, and
// follow-ups after bulk reference removal. Every trigger acquires the
// coordination lease first, so across a cluster at most one collection
// runs at a time and the shared scheduler state is only touched by the
// lease holder.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/store"
)

const (
	// DefaultInterval is how often scheduled collection runs.
	DefaultInterval = time.Hour

	// DefaultPressureInterval is how often free space is probed.
	DefaultPressureInterval = 5 * time.Minute

	// DefaultOldGenerationEvery makes every Nth scheduled generational
	// run include the old generation.
	DefaultOldGenerationEvery = 10

	// bulkDebounce coalesces bursts of bulk-removal notifications into
	// one follow-up run.
	bulkDebounce = 10 * time.Second
)

// Triggers, recorded on each run for the audit trail.
const (
	TriggerInterval = "interval"
	TriggerPressure = "pressure"
	TriggerManual   = "manual"
	TriggerBulk     = "bulk"
)

// ErrNotLeader reports that another node holds the collection lease.
var ErrNotLeader = errors.New("another node holds the collection lease")

// Config configures the scheduler.
type Config struct {
	// Interval between scheduled runs. Zero disables interval runs.
	Interval time.Duration

	// Strategy for scheduled runs. Defaults to gc.StrategyRefCount.
	Strategy string

	// BatchSize for scheduled runs. Zero uses the collector default.
	BatchSize int

	// PressureInterval between free-space probes. Zero disables the
	// pressure trigger.
	PressureInterval time.Duration

	// MinFreeSpacePercent triggers a pressure run when the store's free
	// space drops below it. Zero disables the pressure trigger.
	MinFreeSpacePercent float64

	// PressureGraceOverride shortens the grace period for pressure runs
	// only. Zero keeps the configured grace period even under pressure.
	PressureGraceOverride time.Duration

	// PressureBatchSize replaces BatchSize for pressure runs. Zero keeps
	// BatchSize.
	PressureBatchSize int

	// OldGenerationEvery makes every Nth scheduled generational run
	// include the old generation. Only meaningful when Strategy is
	// gc.StrategyGenerational. Defaults to DefaultOldGenerationEvery.
	OldGenerationEvery int
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = gc.StrategyRefCount
	}
	if c.OldGenerationEvery <= 0 {
		c.OldGenerationEvery = DefaultOldGenerationEvery
	}
}

// Scheduler owns the trigger loop around one collector.
type Scheduler struct {
	collector *gc.Collector
	ledger    *ledger.Ledger
	store     store.Store
	coord     coordinator.Coordinator
	config    Config

	bulkCh chan struct{}

	mu       sync.Mutex
	runCount int // scheduled runs since start, for old-generation cadence

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. The coordinator may be a coordinator.Noop for
// single-node deployments.
func New(collector *gc.Collector, ldg *ledger.Ledger, chunkStore store.Store, coord coordinator.Coordinator, config Config) *Scheduler {
	config.ApplyDefaults()
	return &Scheduler{
		collector: collector,
		ledger:    ldg,
		store:     chunkStore,
		coord:     coord,
		config:    config,
		bulkCh:    make(chan struct{}, 1),
	}
}

// Start launches the trigger loop. Stop shuts it down.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(loopCtx)

	logger.InfoCtx(ctx, "scheduler started",
		"interval", s.config.Interval.String(),
		logger.KeyStrategy, s.config.Strategy,
		"pressure_interval", s.config.PressureInterval.String(),
		"min_free_percent", s.config.MinFreeSpacePercent,
	)
}

// Stop terminates the trigger loop and waits for it to drain. A collection
// already in flight finishes first.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// NotifyBulkRemoval signals that a bulk operation (branch deletion, history
// pruning) just removed many references. The loop schedules a follow-up run
// after a short debounce. Never blocks.
func (s *Scheduler) NotifyBulkRemoval() {
	select {
	case s.bulkCh <- struct{}{}:
	default:
	}
}

// TriggerNow runs a collection immediately on behalf of the API or CLI.
// It still goes through the coordination lease; ErrNotLeader means another
// node is collecting right now. Unlike scheduled triggers it is not
// suppressed by the halted flag, so a halted system still serves dry runs
// (wet runs are rejected by the collector with ledger.ErrHalted).
func (s *Scheduler) TriggerNow(ctx context.Context, opts *gc.Options) (*gc.Stats, error) {
	if opts == nil {
		opts = &gc.Options{}
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}
	return s.runLocked(ctx, opts, false)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	var intervalCh <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		intervalCh = ticker.C
	}

	var pressureCh <-chan time.Time
	if s.config.MinFreeSpacePercent > 0 {
		probe := s.config.PressureInterval
		if probe <= 0 {
			probe = DefaultPressureInterval
		}
		ticker := time.NewTicker(probe)
		defer ticker.Stop()
		pressureCh = ticker.C
	}

	var bulkTimer *time.Timer
	var bulkFire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if bulkTimer != nil {
				bulkTimer.Stop()
			}
			return

		case <-intervalCh:
			s.runScheduled(ctx, TriggerInterval)

		case <-pressureCh:
			s.checkPressure(ctx)

		case <-s.bulkCh:
			// Debounce: a burst of notifications becomes one run
			if bulkTimer == nil {
				bulkTimer = time.NewTimer(bulkDebounce)
				bulkFire = bulkTimer.C
			}

		case <-bulkFire:
			bulkTimer = nil
			bulkFire = nil
			s.runScheduled(ctx, TriggerBulk)
		}
	}
}

// runScheduled executes one non-manual run, honoring the halted flag.
func (s *Scheduler) runScheduled(ctx context.Context, trigger string) {
	opts := &gc.Options{
		Strategy:  s.config.Strategy,
		BatchSize: s.config.BatchSize,
		Trigger:   trigger,
	}

	if trigger == TriggerPressure {
		opts.GraceOverride = s.config.PressureGraceOverride
		if s.config.PressureBatchSize > 0 {
			opts.BatchSize = s.config.PressureBatchSize
		}
	}

	if s.config.Strategy == gc.StrategyGenerational {
		s.mu.Lock()
		s.runCount++
		opts.IncludeOldGeneration = s.runCount%s.config.OldGenerationEvery == 0
		s.mu.Unlock()
	}

	stats, err := s.runLocked(ctx, opts, true)
	switch {
	case errors.Is(err, ErrNotLeader):
		logger.DebugCtx(ctx, "skipping run, not the leaseholder",
			logger.KeyTrigger, trigger)
	case errors.Is(err, ledger.ErrHalted):
		logger.InfoCtx(ctx, "skipping run, collection halted",
			logger.KeyTrigger, trigger)
	case err != nil:
		logger.ErrorCtx(ctx, "scheduled run failed",
			logger.KeyTrigger, trigger, logger.Err(err))
	default:
		logger.InfoCtx(ctx, "scheduled run finished",
			logger.KeyTrigger, trigger,
			logger.KeyRunID, stats.RunID,
			logger.KeyDeleted, stats.ChunksDeleted,
			logger.KeyBytesReclaimed, stats.BytesReclaimed,
		)
	}
}

// runLocked is the single execution path shared by every trigger: take the
// lease, read and update the shared state under it, collect, release.
func (s *Scheduler) runLocked(ctx context.Context, opts *gc.Options, scheduled bool) (*gc.Stats, error) {
	ok, err := s.coord.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire collection lease: %w", err)
	}
	if !ok {
		return nil, ErrNotLeader
	}
	defer func() {
		if relErr := s.coord.Release(context.WithoutCancel(ctx)); relErr != nil {
			logger.WarnCtx(ctx, "release collection lease", logger.Err(relErr))
		}
	}()

	state, err := s.ledger.GetSchedulerState(ctx)
	if err != nil {
		return nil, fmt.Errorf("read scheduler state: %w", err)
	}
	if state.Halted && scheduled {
		return nil, ledger.ErrHalted
	}

	stats, err := s.collector.Collect(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Dry runs report only; they do not consume the schedule slot
	if !opts.DryRun {
		now := time.Now().UTC()
		next := now.Add(s.config.Interval)
		if recErr := s.ledger.RecordRunTimes(ctx, now, next); recErr != nil {
			logger.WarnCtx(ctx, "record run times", logger.Err(recErr))
		}
	}

	return stats, nil
}

// checkPressure probes the store and runs collection when free space is low.
func (s *Scheduler) checkPressure(ctx context.Context) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "storage pressure probe failed", logger.Err(err))
		return
	}
	if stats.TotalBytes == 0 {
		// Backend cannot report capacity (s3, memory)
		return
	}

	freePct := float64(stats.AvailableBytes) / float64(stats.TotalBytes) * 100
	if freePct >= s.config.MinFreeSpacePercent {
		return
	}

	logger.WarnCtx(ctx, "storage pressure detected",
		"free_percent", fmt.Sprintf("%.1f", freePct),
		"min_free_percent", s.config.MinFreeSpacePercent,
	)
	s.runScheduled(ctx, TriggerPressure)
}
