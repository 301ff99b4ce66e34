// Package gc removes unreferenced chunks from the store.
//
// Three interchangeable candidate-finding strategies feed one shared safety
// pipeline. The pipeline is where the guarantees live: a candidate is only
// deleted after passing a fresh-lock revalidation, the payload delete and
// ledger soft delete commit per chunk so partial progress survives crashes,
// and every decision lands on the audit trail.
package gc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/metrics"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// DefaultBatchSize bounds one candidate batch to limit lock hold time and
// I/O bursts.
const DefaultBatchSize = 500

// maxReportedErrors caps how many per-chunk error messages a run keeps.
const maxReportedErrors = 50

// ErrUnknownStrategy is returned for a strategy name Collect doesn't know.
var ErrUnknownStrategy = errors.New("unknown gc strategy")

// ErrNoRootWalker is returned when a mark-and-sweep run is requested but no
// RootWalker was configured.
var ErrNoRootWalker = errors.New("mark-and-sweep requires a root walker")

// Notifier publishes cache eviction events for physically deleted chunks.
// Implementations must tolerate being called for the same hash twice.
type Notifier interface {
	Evict(ctx context.Context, hash chunk.Hash) error
}

// Stats holds statistics about one collection run.
type Stats struct {
	RunID          string   `json:"run_id"`
	Strategy       string   `json:"strategy"`
	DryRun         bool     `json:"dry_run"`
	ChunksScanned  int64    `json:"chunks_scanned"`
	ChunksDeleted  int64    `json:"chunks_deleted"`
	ChunksSkipped  int64    `json:"chunks_skipped"`
	BytesReclaimed int64    `json:"bytes_reclaimed"`
	Errors         []string `json:"errors,omitempty"`
}

// Options configures one collection run.
type Options struct {
	// Strategy selects the candidate finder. Default: StrategyRefCount.
	Strategy string

	// DryRun reports candidates without mutating the ledger or the store.
	DryRun bool

	// BatchSize bounds one candidate batch. Default: DefaultBatchSize.
	BatchSize int

	// GraceOverride shortens the effective grace period. Only honored for
	// pressure-triggered runs; scheduled runs always use the full grace.
	GraceOverride time.Duration

	// IncludeOldGeneration makes a generational run sweep the old
	// generation too. The scheduler sets this on every Nth run.
	IncludeOldGeneration bool

	// Trigger records what started the run (interval, pressure, manual,
	// post-bulk). Informational.
	Trigger string

	// ProgressCallback is called after each batch with a stats snapshot.
	// May be nil.
	ProgressCallback func(stats Stats)
}

// Collector runs the shared safety pipeline over strategy candidates.
type Collector struct {
	store    store.Store
	ledger   *ledger.Ledger
	walker   RootWalker // nil disables mark-and-sweep
	notifier Notifier   // nil disables eviction events
	metrics  *metrics.GCMetrics
	node     string
}

// CollectorOption customizes a Collector.
type CollectorOption func(*Collector)

// WithRootWalker supplies the reachability source for mark-and-sweep runs.
func WithRootWalker(w RootWalker) CollectorOption {
	return func(c *Collector) { c.walker = w }
}

// WithNotifier supplies the cache eviction publisher.
func WithNotifier(n Notifier) CollectorOption {
	return func(c *Collector) { c.notifier = n }
}

// WithMetrics supplies run instrumentation.
func WithMetrics(m *metrics.GCMetrics) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

// WithNode records the node identity on run records.
func WithNode(node string) CollectorOption {
	return func(c *Collector) { c.node = node }
}

// New creates a Collector.
func New(chunkStore store.Store, ldg *ledger.Ledger, opts ...CollectorOption) *Collector {
	c := &Collector{
		store:  chunkStore,
		ledger: ldg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs one collection pass and returns its stats.
//
// The pass is recorded as a GCRun (dry runs included). A halted system
// rejects everything except dry runs, which mutate nothing anyway.
// Per-chunk failures are recorded in the stats and do not abort the batch.
func (c *Collector) Collect(ctx context.Context, opts *Options) (*Stats, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyRefCount
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	halted, err := c.ledger.IsHalted(ctx)
	if err != nil {
		return nil, err
	}
	if halted && !opts.DryRun {
		return nil, ledger.ErrHalted
	}

	run, err := c.ledger.CreateRun(ctx, opts.Strategy, opts.Trigger, c.node, opts.DryRun)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithContext(ctx, logger.NewRunContext(run.ID, opts.Strategy, c.node))
	logger.InfoCtx(ctx, "collection run started",
		logger.KeyTrigger, opts.Trigger,
		logger.KeyDryRun, opts.DryRun,
		logger.KeyBatch, opts.BatchSize,
	)

	stats := &Stats{
		RunID:    run.ID,
		Strategy: opts.Strategy,
		DryRun:   opts.DryRun,
	}
	start := time.Now()

	strategy, err := c.newStrategy(opts, run.ID)
	if err != nil {
		c.finishRun(ctx, run.ID, ledger.RunStatusFailed, stats, err)
		return nil, err
	}

	runErr := c.collect(ctx, strategy, opts, stats)

	status := ledger.RunStatusCompleted
	if runErr != nil {
		status = ledger.RunStatusFailed
	}
	c.finishRun(ctx, run.ID, status, stats, runErr)

	c.metrics.ObserveRun(opts.Strategy, string(status), time.Since(start))
	c.updatePendingGauges(ctx)

	logger.InfoCtx(ctx, "collection run finished",
		logger.KeyScanned, stats.ChunksScanned,
		logger.KeyDeleted, stats.ChunksDeleted,
		logger.KeyBytesReclaimed, stats.BytesReclaimed,
		"skipped", stats.ChunksSkipped,
		"errors", len(stats.Errors),
	)

	if runErr != nil {
		return stats, runErr
	}
	return stats, nil
}

// newStrategy builds the per-run strategy instance.
func (c *Collector) newStrategy(opts *Options, runID string) (Strategy, error) {
	switch opts.Strategy {
	case StrategyRefCount:
		return &refCountStrategy{
			ledger:        c.ledger,
			graceOverride: opts.GraceOverride,
		}, nil

	case StrategyGenerational:
		return &generationalStrategy{
			ledger:     c.ledger,
			includeOld: opts.IncludeOldGeneration,
		}, nil

	case StrategyMarkSweep:
		if c.walker == nil {
			return nil, ErrNoRootWalker
		}
		return &markSweepStrategy{
			ledger: c.ledger,
			store:  c.store,
			walker: c.walker,
			runID:  runID,
			dryRun: opts.DryRun,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, opts.Strategy)
	}
}

// collect drains the strategy batch by batch until it is exhausted. The
// strategy's own cursor guarantees forward progress, so a batch full of
// skipped or failing chunks cannot make the loop spin in place.
func (c *Collector) collect(ctx context.Context, strategy Strategy, opts *Options, stats *Stats) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates, err := strategy.FindCandidates(ctx, opts.BatchSize)
		if err != nil {
			return err
		}
		if ms, ok := strategy.(*markSweepStrategy); ok {
			// The mark phase scans the whole store; report that instead
			// of just the candidate count.
			if ms.Scanned() > stats.ChunksScanned {
				stats.ChunksScanned = ms.Scanned()
			}
		} else {
			stats.ChunksScanned += int64(len(candidates))
		}

		if len(candidates) == 0 {
			return nil
		}

		if opts.DryRun {
			// Nothing is mutated; counting relies on the cursor to move
			// the next batch past these, so the report covers the same
			// set a wet run would delete.
			for _, cand := range candidates {
				stats.ChunksDeleted++
				stats.BytesReclaimed += cand.Size
			}
			c.progress(opts, stats)
			continue
		}

		for _, cand := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.processCandidate(ctx, cand, opts, stats)
		}
		c.progress(opts, stats)
	}
}

// processCandidate runs the safety pipeline for one chunk. Failures are
// recorded on the stats; the chunk stays eligible for the next run.
func (c *Collector) processCandidate(ctx context.Context, cand ledger.Candidate, opts *Options, stats *Stats) {
	// Fresh-lock revalidation closes the race between selection and
	// deletion: a chunk re-referenced since the query is skipped here.
	row, eligible, err := c.ledger.Revalidate(ctx, cand.Hash, opts.GraceOverride)
	if err != nil {
		c.recordFailure(ctx, cand, stats, fmt.Errorf("revalidate: %w", err))
		return
	}
	if !eligible {
		stats.ChunksSkipped++
		c.metrics.ObserveSkip()
		c.audit(ctx, stats.RunID, cand, ledger.ActionSkipped, "revalidation failed, chunk retained")
		logger.DebugCtx(ctx, "candidate skipped", logger.AbbrevHash(string(cand.Hash)))
		return
	}

	// Phase one: remove the payload. Absent payloads are fine, the
	// deletion may have succeeded on a previous crashed run.
	if err := c.store.Delete(ctx, cand.Hash); err != nil {
		c.recordFailure(ctx, cand, stats, fmt.Errorf("store delete: %w", err))
		return
	}

	// Phase two: soft-delete the ledger row. Its ref_count guard refuses
	// chunks resurrected in the window since revalidation.
	if err := c.ledger.SoftDelete(ctx, cand.Hash); err != nil {
		if errors.Is(err, ledger.ErrChunkNotFound) {
			stats.ChunksSkipped++
			c.metrics.ObserveSkip()
			c.audit(ctx, stats.RunID, cand, ledger.ActionSkipped, "re-referenced before soft delete")
			return
		}
		c.recordFailure(ctx, cand, stats, fmt.Errorf("soft delete: %w", err))
		return
	}

	size := cand.Size
	if row != nil {
		size = row.Size
	}
	stats.ChunksDeleted++
	stats.BytesReclaimed += size
	c.metrics.ObserveDeletion(size)
	c.audit(ctx, stats.RunID, cand, ledger.ActionDeleted, "")

	if c.notifier != nil {
		if err := c.notifier.Evict(ctx, cand.Hash); err != nil {
			// Caches are eventually consistent observers; a lost event
			// costs a failed read, not correctness.
			logger.WarnCtx(ctx, "evict notification failed",
				logger.AbbrevHash(string(cand.Hash)),
				logger.Err(err),
			)
		}
	}

	logger.DebugCtx(ctx, "chunk deleted",
		logger.AbbrevHash(string(cand.Hash)),
		logger.KeySize, size,
	)
}

// recordFailure captures a per-chunk error without aborting the batch.
func (c *Collector) recordFailure(ctx context.Context, cand ledger.Candidate, stats *Stats, err error) {
	if len(stats.Errors) < maxReportedErrors {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", cand.Hash.Short(), err))
	}
	c.metrics.ObserveError()
	c.audit(ctx, stats.RunID, cand, ledger.ActionFailed, err.Error())
	logger.WarnCtx(ctx, "chunk deletion failed",
		logger.AbbrevHash(string(cand.Hash)),
		logger.Err(err),
	)
}

// audit appends a run decision, logging rather than failing on error: an
// unwritable audit trail must not stop a run that already mutated state.
func (c *Collector) audit(ctx context.Context, runID string, cand ledger.Candidate, action ledger.AuditAction, reason string) {
	entry := ledger.AuditEntry{
		RunID:     runID,
		ChunkHash: string(cand.Hash),
		Size:      cand.Size,
		Action:    action,
		Reason:    reason,
	}
	if err := c.ledger.AppendAudit(ctx, entry); err != nil {
		logger.ErrorCtx(ctx, "audit append failed", logger.Err(err))
	}
}

func (c *Collector) finishRun(ctx context.Context, runID string, status ledger.RunStatus, stats *Stats, runErr error) {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	err := c.ledger.FinishRun(ctx, runID, status, ledger.RunStats{
		ChunksScanned:  stats.ChunksScanned,
		ChunksDeleted:  stats.ChunksDeleted,
		BytesReclaimed: stats.BytesReclaimed,
	}, errMsg)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to close run record", logger.Err(err))
	}
}

func (c *Collector) updatePendingGauges(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	pending, err := c.ledger.PendingCount(ctx)
	if err != nil {
		return
	}
	reclaimable, err := c.ledger.ReclaimableBytes(ctx)
	if err != nil {
		return
	}
	c.metrics.SetPending(pending, reclaimable)
}

func (c *Collector) progress(opts *Options, stats *Stats) {
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(*stats)
	}
}
