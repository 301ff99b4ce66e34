package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkvault/chunkvault/pkg/chunk"
	"github.com/chunkvault/chunkvault/pkg/coordinator"
	"github.com/chunkvault/chunkvault/pkg/gc"
	"github.com/chunkvault/chunkvault/pkg/ledger"
	"github.com/chunkvault/chunkvault/pkg/store"
	"github.com/chunkvault/chunkvault/pkg/store/memory"
)

const testGrace = time.Hour

type env struct {
	store     *memory.Store
	ledger    *ledger.Ledger
	collector *gc.Collector
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	l, err := ledger.New(&ledger.Config{
		Type:        ledger.DatabaseTypeSQLite,
		SQLite:      ledger.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
		GracePeriod: testGrace,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	e := &env{
		store:  memory.New(),
		ledger: l,
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	l.SetClock(func() time.Time { return e.now })
	e.collector = gc.New(e.store, l)
	return e
}

// addExpiredOrphan stores a chunk whose grace window has already lapsed.
func (e *env) addExpiredOrphan(t *testing.T, payload string) chunk.Hash {
	t.Helper()
	ctx := context.Background()

	hash := chunk.Sum([]byte(payload))
	require.NoError(t, e.store.Put(ctx, hash, []byte(payload)))
	require.NoError(t, e.ledger.RegisterChunk(ctx, hash, int64(len(payload)), 0, chunk.TierHot))
	src := chunk.Source{Kind: chunk.SourceCommit, ID: "c-" + payload, RepositoryID: "repo-1"}
	_, err := e.ledger.IncrementReference(ctx, hash, src)
	require.NoError(t, err)
	_, err = e.ledger.DecrementReference(ctx, hash, src)
	require.NoError(t, err)

	e.now = e.now.Add(2 * testGrace)
	return hash
}

func TestTriggerNow_RunsCollection(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{Interval: time.Hour})

	hash := e.addExpiredOrphan(t, "manual payload")

	stats, err := s.TriggerNow(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ChunksDeleted)

	_, err = e.store.Get(ctx, hash)
	assert.ErrorIs(t, err, store.ErrChunkNotFound)

	// The run is on record
	run, err := e.ledger.GetRun(ctx, stats.RunID)
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, run.Trigger)

	// The schedule advanced
	state, err := e.ledger.GetSchedulerState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.LastRunAt)
	require.NotNil(t, state.NextScheduledAt)
	assert.True(t, state.NextScheduledAt.After(*state.LastRunAt))
}

func TestTriggerNow_DryRunLeavesScheduleAlone(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{Interval: time.Hour})

	e.addExpiredOrphan(t, "dry payload")

	stats, err := s.TriggerNow(ctx, &gc.Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ChunksDeleted)

	state, err := e.ledger.GetSchedulerState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.LastRunAt)
}

// deniedCoordinator simulates another node holding the lease.
type deniedCoordinator struct {
	holder string
}

func (c *deniedCoordinator) Acquire(ctx context.Context) (bool, error) { return false, nil }
func (c *deniedCoordinator) Release(ctx context.Context) error         { return nil }
func (c *deniedCoordinator) Holder(ctx context.Context) (string, error) {
	return c.holder, nil
}

func TestTriggerNow_LeaseContention(t *testing.T) {
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, &deniedCoordinator{holder: "other-node"}, Config{})

	hash := e.addExpiredOrphan(t, "contended payload")

	_, err := s.TriggerNow(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotLeader)

	// Nothing was touched
	_, err = e.store.Get(context.Background(), hash)
	assert.NoError(t, err)
}

func TestRunScheduled_SuppressedWhileHalted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{Interval: time.Hour})

	require.NoError(t, e.ledger.Halt(ctx, "maintenance"))
	hash := e.addExpiredOrphan(t, "halted payload")

	s.runScheduled(ctx, TriggerInterval)

	_, err := e.store.Get(ctx, hash)
	assert.NoError(t, err, "halted scheduler must not collect")

	// Manual dry runs still work while halted
	stats, err := s.TriggerNow(ctx, &gc.Options{DryRun: true})
	require.NoError(t, err)
	assert.NotNil(t, stats)

	// Manual wet runs are rejected by the collector
	_, err = s.TriggerNow(ctx, nil)
	assert.ErrorIs(t, err, ledger.ErrHalted)
}

func TestRunScheduled_PressureOptions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{
		Interval:              time.Hour,
		PressureGraceOverride: testGrace / 4,
	})

	// Orphaned but grace not yet elapsed
	hash := chunk.Sum([]byte("pressure payload"))
	require.NoError(t, e.store.Put(ctx, hash, []byte("pressure payload")))
	require.NoError(t, e.ledger.RegisterChunk(ctx, hash, 16, 0, chunk.TierHot))
	src := chunk.Source{Kind: chunk.SourceCommit, ID: "c1", RepositoryID: "repo-1"}
	_, err := e.ledger.IncrementReference(ctx, hash, src)
	require.NoError(t, err)
	_, err = e.ledger.DecrementReference(ctx, hash, src)
	require.NoError(t, err)
	e.now = e.now.Add(testGrace / 2)

	// Interval run respects the full grace period
	s.runScheduled(ctx, TriggerInterval)
	_, err = e.store.Get(ctx, hash)
	assert.NoError(t, err)

	// Pressure run applies the shortened grace
	s.runScheduled(ctx, TriggerPressure)
	_, err = e.store.Get(ctx, hash)
	assert.ErrorIs(t, err, store.ErrChunkNotFound)
}

func TestCheckPressure_IgnoresUnknownCapacity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{
		MinFreeSpacePercent:   10,
		PressureGraceOverride: time.Nanosecond,
	})

	// The memory store reports zero capacity, so pressure never fires
	hash := e.addExpiredOrphan(t, "capacity payload")
	s.checkPressure(ctx)

	_, err := e.store.Get(ctx, hash)
	assert.NoError(t, err)
}

func TestNotifyBulkRemoval_TriggersFollowUp(t *testing.T) {
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{Interval: time.Hour})

	// The channel holds one pending signal; repeat notifications coalesce
	s.NotifyBulkRemoval()
	s.NotifyBulkRemoval()
	s.NotifyBulkRemoval()

	select {
	case <-s.bulkCh:
	default:
		t.Fatal("bulk notification not queued")
	}
	select {
	case <-s.bulkCh:
		t.Fatal("bulk notifications must coalesce into one signal")
	default:
	}
}

func TestGenerationalCadence(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{
		Interval:           time.Hour,
		Strategy:           gc.StrategyGenerational,
		OldGenerationEvery: 3,
	})

	// Old-generation chunk: created, aged past the young window, orphaned
	hash := chunk.Sum([]byte("old gen payload"))
	require.NoError(t, e.store.Put(ctx, hash, []byte("old gen payload")))
	require.NoError(t, e.ledger.RegisterChunk(ctx, hash, 15, 0, chunk.TierHot))
	src := chunk.Source{Kind: chunk.SourceCommit, ID: "c1", RepositoryID: "repo-1"}
	_, err := e.ledger.IncrementReference(ctx, hash, src)
	require.NoError(t, err)
	e.now = e.now.Add(10 * 24 * time.Hour)
	_, err = e.ledger.DecrementReference(ctx, hash, src)
	require.NoError(t, err)
	e.now = e.now.Add(2 * testGrace)

	// Runs 1 and 2 skip the old generation, run 3 includes it
	s.runScheduled(ctx, TriggerInterval)
	_, err = e.store.Get(ctx, hash)
	require.NoError(t, err)

	s.runScheduled(ctx, TriggerInterval)
	_, err = e.store.Get(ctx, hash)
	require.NoError(t, err)

	s.runScheduled(ctx, TriggerInterval)
	_, err = e.store.Get(ctx, hash)
	assert.ErrorIs(t, err, store.ErrChunkNotFound)
}

func TestStartStop(t *testing.T) {
	e := newEnv(t)
	s := New(e.collector, e.ledger, e.store, coordinator.NewNoop("node-1"), Config{
		Interval: time.Hour,
	})

	s.Start(context.Background())
	s.Stop()
}
