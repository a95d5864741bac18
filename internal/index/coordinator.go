package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/metrics"
)

// commitCoordinator owns the engine. Every Engine call happens under mu, so
// the engine never sees concurrent use and at most one commit runs at a time.
type commitCoordinator struct {
	mu      sync.Mutex
	engine  Engine
	metrics *metrics.Pipeline
	now     func() time.Time

	threshold int
	interval  time.Duration

	sinceCommit int
	lastIndex   time.Time
	closed      bool
}

func newCommitCoordinator(engine Engine, cfg Config, m *metrics.Pipeline, now func() time.Time) *commitCoordinator {
	return &commitCoordinator{
		engine:    engine,
		metrics:   m,
		now:       now,
		threshold: cfg.CommitThreshold,
		interval:  cfg.CommitInterval,
	}
}

// index writes one document and counts it toward the next commit.
func (c *commitCoordinator) index(ctx context.Context, i *Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fterrors.ErrIndexClosed
	}
	if err := c.engine.Index(ctx, i.id, i.res, i.doc); err != nil {
		return fterrors.Wrap(fterrors.ErrCodeIndexFailed, err).WithDetail("id", i.id)
	}
	c.recordWriteLocked(ctx)
	return nil
}

// deleteDocument removes one document and counts it toward the next commit.
func (c *commitCoordinator) deleteDocument(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fterrors.ErrIndexClosed
	}
	if err := c.engine.DeleteDocument(ctx, id); err != nil {
		return fterrors.Wrap(fterrors.ErrCodeIndexFailed, err).WithDetail("id", id)
	}
	c.recordWriteLocked(ctx)
	return nil
}

// deleteContainer removes every document in a container.
func (c *commitCoordinator) deleteContainer(ctx context.Context, containerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fterrors.ErrIndexClosed
	}
	if err := c.engine.DeleteContainer(ctx, containerID); err != nil {
		return fterrors.Wrap(fterrors.ErrCodeIndexFailed, err).WithDetail("container", containerID)
	}
	c.recordWriteLocked(ctx)
	return nil
}

// clear wipes the index and forgets pending writes.
func (c *commitCoordinator) clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fterrors.ErrIndexClosed
	}
	if err := c.engine.Clear(ctx); err != nil {
		return fterrors.StorageError("failed to clear index", err)
	}
	c.sinceCommit = 0
	c.metrics.SinceCommit(0)
	return nil
}

func (c *commitCoordinator) recordWriteLocked(ctx context.Context) {
	c.sinceCommit++
	c.lastIndex = c.now()
	c.metrics.SinceCommit(c.sinceCommit)

	if c.sinceCommit > c.threshold {
		slog.Debug("commit threshold reached", slog.Int("pending", c.sinceCommit))
		_ = c.commitLocked(ctx)
	}
}

// commit forces a commit, even with nothing pending.
func (c *commitCoordinator) commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fterrors.ErrIndexClosed
	}
	return c.commitLocked(ctx)
}

// maybeCommitIdle is the index stage's no-work check. It commits only when
// writes are pending, the stage has been idle for the commit interval and
// the run queue is empty.
func (c *commitCoordinator) maybeCommitIdle(ctx context.Context, runQueueEmpty bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sinceCommit == 0 || !runQueueEmpty {
		return false
	}
	if c.now().Sub(c.lastIndex) < c.interval {
		return false
	}
	_ = c.commitLocked(ctx)
	return true
}

// finalCommit flushes anything still pending. It is a no-op when nothing is pending.
func (c *commitCoordinator) finalCommit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sinceCommit == 0 {
		return
	}
	_ = c.commitLocked(ctx)
}

// commitLocked commits with one immediate retry. The pending counter is
// reset even on failure so a broken engine is not retried forever.
func (c *commitCoordinator) commitLocked(ctx context.Context) error {
	start := time.Now()
	pending := c.sinceCommit

	err := fterrors.Retry(ctx, fterrors.SecondChance(), func() error {
		return c.engine.Commit(ctx)
	})
	c.sinceCommit = 0
	c.metrics.SinceCommit(0)
	c.metrics.Committed(time.Since(start).Seconds(), err)

	if err != nil {
		wrapped := fterrors.Wrap(fterrors.ErrCodeCommitFailed, err)
		slog.Error("index commit failed", fterrors.LogAttrs(wrapped)...)
		return wrapped
	}
	slog.Debug("index committed",
		slog.Int("documents", pending),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// pending returns the number of uncommitted writes.
func (c *commitCoordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinceCommit
}

// shutdown performs the last commit and releases the engine. Later calls are no-ops.
func (c *commitCoordinator) shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if c.sinceCommit > 0 {
		_ = c.commitLocked(ctx)
	}
	c.closed = true
	if err := c.engine.Shutdown(ctx); err != nil {
		return fterrors.StorageError("failed to shut down index engine", err)
	}
	return nil
}
