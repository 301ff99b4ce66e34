package gc

import (
	"context"
	"time"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/ledger"
)

// Strategy names accepted by Options.Strategy.
const (
	StrategyRefCount     = "refcount"
	StrategyMarkSweep    = "marksweep"
	StrategyGenerational = "generational"
)

// Generational age boundaries.
const (
	// NurseryAge is the age below which chunks are never collected.
	NurseryAge = 24 * time.Hour

	// YoungAge separates the young generation (swept frequently) from the
	// old one (swept infrequently).
	YoungAge = 7 * 24 * time.Hour
)

// Strategy finds deletion candidates. Every candidate still goes through
// the shared safety pipeline (revalidation, two-phase delete, audit), so a
// strategy can afford to be approximate but must never bypass the pipeline.
//
// Instances are per run and not safe for concurrent use. A strategy tracks
// its own position: repeated calls advance through the candidate set even
// for candidates the caller did not delete, and an empty result means the
// strategy is exhausted for this run.
type Strategy interface {
	// Name identifies the strategy in run records and logs.
	Name() string

	// FindCandidates returns the next batch of up to limit candidates.
	FindCandidates(ctx context.Context, limit int) ([]ledger.Candidate, error)
}

// ============================================================================
// Reference-Count Sweep
// ============================================================================

// refCountStrategy selects chunks whose grace period has elapsed.
// This is the default, incremental path. The hash cursor pages through the
// pending set exactly once per run: candidates that were skipped or failed
// stay behind the cursor and wait for the next run, and dry runs can
// enumerate the whole set without mutating anything.
type refCountStrategy struct {
	ledger        *ledger.Ledger
	graceOverride time.Duration

	after chunk.Hash
	done  bool
}

func (s *refCountStrategy) Name() string {
	return StrategyRefCount
}

func (s *refCountStrategy) FindCandidates(ctx context.Context, limit int) ([]ledger.Candidate, error) {
	if s.done {
		return nil, nil
	}

	candidates, err := s.ledger.ExpiredPending(ctx, ledger.CandidateQuery{
		Limit:         limit,
		GraceOverride: s.graceOverride,
		AfterHash:     s.after,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.done = true
		return nil, nil
	}
	s.after = candidates[len(candidates)-1].Hash
	return candidates, nil
}

// ============================================================================
// Generational Sweep
// ============================================================================

// generationalStrategy partitions expired chunks by age. The nursery
// (younger than a day) is never touched: very recent chunks are
// overwhelmingly still referenced and sweeping them is wasted work. The
// young generation is swept on every run; the old one only when the run
// asks for it. Each generation keeps its own hash cursor, and the old
// generation starts only after the young one is exhausted, partial batches
// included.
type generationalStrategy struct {
	ledger     *ledger.Ledger
	includeOld bool

	youngAfter chunk.Hash
	youngDone  bool
	oldAfter   chunk.Hash
	oldDone    bool
}

func (s *generationalStrategy) Name() string {
	return StrategyGenerational
}

func (s *generationalStrategy) FindCandidates(ctx context.Context, limit int) ([]ledger.Candidate, error) {
	if !s.youngDone {
		candidates, err := s.ledger.ExpiredPending(ctx, ledger.CandidateQuery{
			Limit:     limit,
			MinAge:    NurseryAge,
			MaxAge:    YoungAge,
			AfterHash: s.youngAfter,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			s.youngAfter = candidates[len(candidates)-1].Hash
			return candidates, nil
		}
		s.youngDone = true
	}

	if !s.includeOld || s.oldDone {
		return nil, nil
	}

	candidates, err := s.ledger.ExpiredPending(ctx, ledger.CandidateQuery{
		Limit:     limit,
		MinAge:    YoungAge,
		AfterHash: s.oldAfter,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.oldDone = true
		return nil, nil
	}
	s.oldAfter = candidates[len(candidates)-1].Hash
	return candidates, nil
}
