package gc

import (
	"context"
	"errors"
	"fmt"

	"github.com/chunkvault/chunkvault/internal/logger"
	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/store"
)

// ============================================================================
// Mark-and-Sweep
// ============================================================================

// RootWalker enumerates the chunk hashes reachable from every live root:
// each commit's chunk list, staged and stashed changes, tags, and
// non-expired pending uploads. The embedding system supplies it; the
// collector treats the returned set as the complete truth for this sweep.
type RootWalker interface {
	ReachableHashes(ctx context.Context) (map[chunk.Hash]struct{}, error)
}

// RootWalkerFunc adapts a function to the RootWalker interface.
type RootWalkerFunc func(ctx context.Context) (map[chunk.Hash]struct{}, error)

// ReachableHashes calls the wrapped function.
func (f RootWalkerFunc) ReachableHashes(ctx context.Context) (map[chunk.Hash]struct{}, error) {
	return f(ctx)
}

// markSweepStrategy recomputes full reachability instead of trusting the
// incremental counters, making it the periodic correctness backstop. The
// mark phase streams the whole store and puts every unreachable chunk into
// the pending set (healing stale counters as it goes); the sweep phase then
// returns whatever has outlived its grace window, which includes chunks
// marked by earlier runs.
type markSweepStrategy struct {
	ledger *ledger.Ledger
	store  store.Store
	walker RootWalker
	runID  string

	// dryRun suppresses the ledger writes of the mark phase; the sweep
	// then reports only chunks already past their grace window, which is
	// exactly what a wet run would delete now.
	dryRun bool

	marked  bool
	scanned int64
	after   chunk.Hash
	done    bool
}

func (s *markSweepStrategy) Name() string {
	return StrategyMarkSweep
}

func (s *markSweepStrategy) FindCandidates(ctx context.Context, limit int) ([]ledger.Candidate, error) {
	if !s.marked {
		if err := s.mark(ctx); err != nil {
			return nil, err
		}
		s.marked = true
	}
	if s.done {
		return nil, nil
	}

	candidates, err := s.ledger.ExpiredPending(ctx, ledger.CandidateQuery{
		Limit:     limit,
		AfterHash: s.after,
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

// Scanned returns how many stored chunks the mark phase examined.
func (s *markSweepStrategy) Scanned() int64 {
	return s.scanned
}

// mark walks the store and marks every chunk absent from the reachable set.
func (s *markSweepStrategy) mark(ctx context.Context) error {
	reachable, err := s.walker.ReachableHashes(ctx)
	if err != nil {
		return fmt.Errorf("walk roots: %w", err)
	}

	logger.InfoCtx(ctx, "mark phase started", "reachable", len(reachable))

	var unreachable int64
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.store.List(ctx, "", token, 0)
		if err != nil {
			return fmt.Errorf("list store: %w", err)
		}

		for _, info := range page.Chunks {
			s.scanned++
			if _, ok := reachable[info.Hash]; ok {
				continue
			}
			if s.dryRun {
				unreachable++
				continue
			}
			if err := s.ledger.MarkUnreachable(ctx, info.Hash, s.runID); err != nil {
				if errors.Is(err, ledger.ErrChunkNotFound) {
					// Payload with no ledger row: adopt it so the
					// deletion lifecycle applies instead of deleting
					// blindly.
					if regErr := s.ledger.RegisterChunk(ctx, info.Hash, info.Size, 0, info.Tier); regErr != nil {
						return regErr
					}
					if markErr := s.ledger.MarkUnreachable(ctx, info.Hash, s.runID); markErr != nil {
						return markErr
					}
				} else {
					return err
				}
			}
			unreachable++
		}

		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	logger.InfoCtx(ctx, "mark phase finished",
		logger.KeyScanned, s.scanned,
		"unreachable", unreachable,
	)
	return nil
}
