package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
)

// throttleInterval is how long the run stage sleeps while the item queue is above its high-water mark.
const throttleInterval = 100 * time.Millisecond

// startWorkers launches one run worker plus the configured preprocess and
// index workers. workersDone closes once all of them have returned.
func (s *Service) startWorkers() {
	s.started.Store(true)

	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return s.runLoop(ctx) })
	for range s.cfg.PreprocessWorkers {
		g.Go(func() error { return s.preprocessLoop(ctx) })
	}
	for range s.cfg.IndexWorkers {
		g.Go(func() error { return s.indexLoop(ctx) })
	}

	go func() {
		if err := g.Wait(); err != nil {
			slog.Error("search worker failed", slog.String("error", err.Error()))
		}
		close(s.workersDone)
	}()
}

// runLoop executes runnables. Whenever the run queue drains it runs the idle
// hooks and asks the index stage for a commit check.
func (s *Service) runLoop(ctx context.Context) error {
	work := context.WithoutCancel(ctx)

	for s.life.waitForRunning(ctx) {
		if !s.throttle(ctx) {
			return nil
		}

		m, ok, err := s.runQueue.Poll(ctx, s.cfg.RunPollTimeout)
		if err != nil {
			return nil
		}
		if ok && !m.isCommitCheck() {
			s.runItem(work, m.item)
		}
		if s.runQueue.Len() == 0 {
			s.onRunQueueIdle(work)
		}
	}
	return nil
}

// throttle sleeps while the item queue is over its high-water mark.
// It returns false if ctx ends first.
func (s *Service) throttle(ctx context.Context) bool {
	for s.itemQueue.Len() > s.cfg.ItemQueueHighWater {
		timer := time.NewTimer(throttleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return true
}

func (s *Service) runItem(ctx context.Context, i *Item) {
	err := safely(func() error { return i.run(ctx) })
	if err != nil {
		err = fterrors.Wrap(fterrors.ErrCodeRunnableFailed, err)
		slog.Error("runnable failed", fterrors.LogAttrs(err)...)
		s.metrics.StageError("run")
	}
	s.completeItem(i, err == nil)
}

func (s *Service) onRunQueueIdle(ctx context.Context) {
	if ps := s.takeParticipants(); len(ps) > 0 && s.sink != nil {
		if err := s.sink.Upsert(ctx, ps); err != nil {
			slog.Warn("failed to store participant ids",
				slog.Int("count", len(ps)),
				slog.String("error", err.Error()))
		}
	}
	for _, h := range s.idleHooks {
		if err := safely(func() error { return h.OnIdle(ctx) }); err != nil {
			slog.Warn("idle hook failed", slog.String("error", err.Error()))
		}
	}
	s.itemQueue.PutCommitCheck()
}

// preprocessLoop is a dedicated preprocess worker feeding the bounded index queue.
func (s *Service) preprocessLoop(ctx context.Context) error {
	work := context.WithoutCancel(ctx)

	for s.life.waitForRunning(ctx) {
		m, err := s.itemQueue.Take(ctx)
		if err != nil {
			return nil
		}
		if m.isCommitCheck() {
			// a full index queue means the index stage has work and will check on its own
			s.indexQueue.Offer(m)
			continue
		}
		if !s.preprocess(work, m.item) {
			continue
		}
		if err := s.indexQueue.Put(ctx, m); err != nil {
			s.completeItem(m.item, false)
			return nil
		}
		if s.isClosed() {
			// shutdown has drained the queues already, so nothing else will
			s.failAll(s.indexQueue.Drain())
			return nil
		}
	}
	return nil
}

// preprocess resolves the item's resource and builds its document. It reports
// whether the item is ready to write; otherwise the item has been completed.
func (s *Service) preprocess(ctx context.Context, i *Item) bool {
	if i.op == OpDelete {
		return true
	}
	if s.seq.superseded(i.id, i.seq) {
		slog.Debug("skipping superseded item", slog.String("id", i.id))
		s.completeItem(i, true)
		return false
	}

	err := safely(func() error {
		if i.res == nil {
			res, err := s.resolvers.resolve(ctx, i.id)
			if err != nil {
				return fterrors.Wrap(fterrors.ErrCodeResolveFailed, err)
			}
			i.res = res
		}
		if i.res == nil || !i.res.Exists() {
			return fterrors.New(fterrors.ErrCodeResourceMissing, "resource not found", nil)
		}

		doc, err := s.preprocessor.Preprocess(ctx, i.id, i.res)
		if err != nil {
			return fterrors.Wrap(fterrors.ErrCodePreprocessFailed, err)
		}
		if doc == nil {
			return fterrors.New(fterrors.ErrCodePreprocessSkip, "preprocessor skipped resource", nil)
		}
		i.doc = doc
		return nil
	})
	if err != nil {
		s.logItemError("preprocess", i, err)
		s.completeItem(i, false)
		return false
	}
	return true
}

// indexLoop is the writer stage. On exit it commits anything still pending.
func (s *Service) indexLoop(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	defer s.coord.finalCommit(work)

	for s.life.waitForRunning(ctx) {
		i, err := s.nextReady(ctx, work)
		if err != nil {
			return nil
		}
		if i == nil {
			s.coord.maybeCommitIdle(work, s.runQueue.Len() == 0)
			continue
		}
		s.write(work, i)
	}
	return nil
}

// nextReady returns the next item ready to write, or nil when the wait found
// no work or only a commit check. With dedicated preprocess workers the index
// stage waits on the index queue and steals one item from the item queue only
// after a full poll timeout without work; without them it preprocesses inline.
func (s *Service) nextReady(ctx, work context.Context) (*Item, error) {
	if s.cfg.PreprocessWorkers > 0 {
		m, ok, err := s.indexQueue.Poll(ctx, s.cfg.ItemPollTimeout)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.fromIndexQueue(m), nil
		}
		if m, ok := s.itemQueue.TryTake(); ok {
			return s.fromItemQueue(work, m), nil
		}
		return nil, nil
	}

	if m, ok := s.indexQueue.TryTake(); ok {
		return s.fromIndexQueue(m), nil
	}

	m, ok, err := s.itemQueue.Poll(ctx, s.cfg.ItemPollTimeout)
	if err != nil || !ok {
		return nil, err
	}
	return s.fromItemQueue(work, m), nil
}

func (s *Service) fromIndexQueue(m message) *Item {
	if m.isCommitCheck() {
		return nil
	}
	return m.item
}

func (s *Service) fromItemQueue(ctx context.Context, m message) *Item {
	if m.isCommitCheck() || !s.preprocess(ctx, m.item) {
		return nil
	}
	return m.item
}

// write applies one item to the engine. Per-item failures never stop the stage.
func (s *Service) write(ctx context.Context, i *Item) {
	if s.seq.superseded(i.id, i.seq) {
		slog.Debug("skipping superseded item",
			slog.String("id", i.id),
			slog.String("op", i.op.String()))
		s.completeItem(i, true)
		return
	}

	var err error
	switch i.op {
	case OpDelete:
		err = safely(func() error { return s.coord.deleteDocument(ctx, i.id) })
	default:
		if i.res == nil || !i.res.Exists() {
			err = fterrors.New(fterrors.ErrCodeResourceMissing, "resource disappeared before indexing", nil)
		} else {
			err = safely(func() error { return s.coord.index(ctx, i) })
		}
	}
	if err != nil {
		s.logItemError("index", i, err)
		s.completeItem(i, false)
		return
	}

	if setter, ok := i.res.(LastIndexedSetter); ok {
		setter.SetLastIndexed(i.enqueued)
	}
	slog.Debug("indexed",
		slog.String("id", i.id),
		slog.String("op", i.op.String()),
		slog.Duration("latency", time.Since(i.enqueued)))
	s.completeItem(i, true)
}

// logItemError logs an item failure at a level matching its severity.
func (s *Service) logItemError(stage string, i *Item, err error) {
	s.metrics.StageError(stage)
	attrs := append([]any{"stage", stage, "id", i.id}, fterrors.LogAttrs(err)...)

	switch fterrors.GetSeverity(err) {
	case fterrors.SeverityInfo:
		slog.Debug("item skipped", attrs...)
	case fterrors.SeverityWarning:
		slog.Warn("item failed", attrs...)
	default:
		slog.Error("item failed", attrs...)
	}
}

// safely runs fn and turns a panic into an error so one bad item cannot kill a worker.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fterrors.New(fterrors.ErrCodeInternal, fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return fn()
}
