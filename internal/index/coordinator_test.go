package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
)

func newTestCoordinator(engine Engine, clock *fakeClock) *commitCoordinator {
	cfg := DefaultConfig()
	cfg.CommitThreshold = 5
	return newCommitCoordinator(engine, cfg, nil, clock.Now)
}

func indexedItem(id string) *Item {
	i := newResourceItem(nil, OpAdd, id, newFakeResource(id), PriorityBulk)
	i.doc = Document{"title": id}
	return i
}

func TestCoordinator_NeverCommitsConcurrently(t *testing.T) {
	// Given: an engine whose commit is slow enough to overlap if unguarded
	engine := newFakeEngine()
	engine.commitDelay = 2 * time.Millisecond
	coord := newTestCoordinator(engine, newFakeClock())

	// When: many goroutines commit and write at once
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = coord.commit(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = coord.index(context.Background(), indexedItem(ids("doc", 20)[i]))
		}()
	}
	wg.Wait()

	// Then: the engine was never entered by two goroutines
	assert.False(t, engine.overlap.Load())
	assert.GreaterOrEqual(t, engine.commitCount(), 20)
}

func TestCoordinator_IdleCheckWithNothingPendingNeverCommits(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	coord := newTestCoordinator(engine, clock)

	for range 50 {
		clock.Advance(time.Minute)
		assert.False(t, coord.maybeCommitIdle(context.Background(), true))
	}
	coord.finalCommit(context.Background())

	assert.Zero(t, engine.commitCount())
}

func TestCoordinator_IdleCommitNeedsIntervalAndEmptyRunQueue(t *testing.T) {
	// Given: one pending write
	engine := newFakeEngine()
	clock := newFakeClock()
	coord := newTestCoordinator(engine, clock)
	require.NoError(t, coord.index(context.Background(), indexedItem("a")))

	// When/Then: too soon
	assert.False(t, coord.maybeCommitIdle(context.Background(), true))

	// When/Then: interval elapsed but run queue busy
	clock.Advance(3 * time.Second)
	assert.False(t, coord.maybeCommitIdle(context.Background(), false))

	// When/Then: interval elapsed and run queue empty
	assert.True(t, coord.maybeCommitIdle(context.Background(), true))
	assert.Equal(t, 1, engine.commitCount())
	assert.Zero(t, coord.pending())
}

func TestCoordinator_ThresholdForcesCommit(t *testing.T) {
	engine := newFakeEngine()
	coord := newTestCoordinator(engine, newFakeClock())

	for _, id := range ids("doc", 6) {
		require.NoError(t, coord.index(context.Background(), indexedItem(id)))
	}

	assert.Equal(t, 1, engine.commitCount())
	assert.Zero(t, coord.pending())
}

func TestCoordinator_FailedCommitRetriesOnceAndResets(t *testing.T) {
	// Given: an engine whose commits always fail
	engine := newFakeEngine()
	engine.commitErr = errors.New("disk full")
	coord := newTestCoordinator(engine, newFakeClock())
	require.NoError(t, coord.index(context.Background(), indexedItem("a")))

	// When: committing
	err := coord.commit(context.Background())

	// Then: two attempts, counters reset, commit error surfaced
	require.Error(t, err)
	assert.Equal(t, fterrors.ErrCodeCommitFailed, fterrors.GetCode(err))
	assert.Equal(t, 2, engine.commitCount())
	assert.Zero(t, coord.pending())
}

func TestCoordinator_WritesAfterShutdownFail(t *testing.T) {
	engine := newFakeEngine()
	coord := newTestCoordinator(engine, newFakeClock())
	require.NoError(t, coord.index(context.Background(), indexedItem("a")))

	require.NoError(t, coord.shutdown(context.Background()))
	require.NoError(t, coord.shutdown(context.Background()))

	assert.Equal(t, 1, engine.commitCount(), "shutdown commits pending writes once")
	assert.Equal(t, 1, engine.shutdowns)
	assert.ErrorIs(t, coord.index(context.Background(), indexedItem("b")), fterrors.ErrIndexClosed)
}

func TestCoordinator_IndexErrorIsWrapped(t *testing.T) {
	engine := newFakeEngine()
	engine.indexErr["bad"] = errors.New("mapping conflict")
	coord := newTestCoordinator(engine, newFakeClock())

	err := coord.index(context.Background(), indexedItem("bad"))

	assert.Equal(t, fterrors.ErrCodeIndexFailed, fterrors.GetCode(err))
	assert.Zero(t, coord.pending())
}
