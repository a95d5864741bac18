// Package index implements the asynchronous full-text indexing pipeline.
//
// Work enters as Items on priority queues and flows through three worker
// roles: the run stage executes deferred runnables, optional preprocess
// workers turn resources into documents, and the index stage writes those
// documents through a single-writer commit coordinator.
package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/metrics"
)

// ClearListener is notified after the index has been cleared.
type ClearListener interface {
	OnClear(ctx context.Context) error
}

// Options contains the injected collaborators for a Service.
type Options struct {
	// Config tunes the pipeline (zero values take defaults).
	Config Config

	// Engine is the concrete index (required).
	Engine Engine

	// Preprocessor builds documents. Defaults to an empty document per resource.
	Preprocessor Preprocessor

	// Crawler is started on Start when CrawlRoot is set (optional).
	Crawler   Crawler
	CrawlRoot string

	// ParticipantSink receives buffered participant ids when the run queue drains (optional).
	ParticipantSink ParticipantSink

	// IdleHooks run each time the run queue drains.
	IdleHooks []IdleHook

	// ClearListeners run after Clear.
	ClearListeners []ClearListener

	// Metrics records pipeline activity (optional).
	Metrics *metrics.Pipeline

	// Clock overrides time.Now for commit timing (tests).
	Clock func() time.Time
}

// Status is a snapshot of the pipeline for status reporting.
type Status struct {
	State              string      `json:"state"`
	Busy               bool        `json:"busy"`
	RunQueue           int         `json:"run_queue"`
	ItemQueue          int         `json:"item_queue"`
	IndexQueue         int         `json:"index_queue"`
	IndexQueueCapacity int         `json:"index_queue_capacity"`
	PendingCommit      int         `json:"pending_commit"`
	Tasks              []TaskStats `json:"tasks"`
}

// Service is the search indexing service. It owns its registries and queues;
// nothing is process-global.
type Service struct {
	cfg            Config
	preprocessor   Preprocessor
	crawler        Crawler
	crawlRoot      string
	sink           ParticipantSink
	idleHooks      []IdleHook
	clearListeners []ClearListener
	metrics        *metrics.Pipeline

	resolvers   *resolverRegistry
	categories  *categoryRegistry
	tasks       taskRegistry
	defaultTask *Task

	runQueue   *priorityQueue
	itemQueue  *priorityQueue
	indexQueue *boundedQueue

	coord *commitCoordinator
	seq   *sequencer
	life  *lifecycle

	participantsMu sync.Mutex
	participants   []Participant

	// queueMu orders submissions against the shutdown drain.
	queueMu sync.RWMutex
	closed  bool

	ctx          context.Context
	cancel       context.CancelFunc
	startOnce    sync.Once
	started      atomic.Bool
	workersDone  chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewService creates a paused service. Call Start to begin processing.
func NewService(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, fterrors.ValidationError("index engine is required", nil)
	}

	cfg := opts.Config.withDefaults()
	seq, err := newSequencer(cfg.SequenceCacheSize)
	if err != nil {
		return nil, fterrors.InternalError("failed to create sequence cache", err)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	pre := opts.Preprocessor
	if pre == nil {
		pre = passthroughPreprocessor{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:            cfg,
		preprocessor:   pre,
		crawler:        opts.Crawler,
		crawlRoot:      opts.CrawlRoot,
		sink:           opts.ParticipantSink,
		idleHooks:      opts.IdleHooks,
		clearListeners: opts.ClearListeners,
		metrics:        opts.Metrics,
		resolvers:      newResolverRegistry(),
		categories:     newCategoryRegistry(),
		runQueue:       newPriorityQueue(),
		itemQueue:      newPriorityQueue(),
		indexQueue:     newBoundedQueue(cfg.IndexQueueCapacity),
		coord:          newCommitCoordinator(opts.Engine, cfg, opts.Metrics, now),
		seq:            seq,
		life:           newLifecycle(),
		ctx:            ctx,
		cancel:         cancel,
		workersDone:    make(chan struct{}),
	}
	s.defaultTask = newTask(s, "default", true)
	s.tasks.add(s.defaultTask)
	return s, nil
}

// SetCrawler attaches a crawler that Start runs continuously over root.
// Call it before Start; the crawler usually needs the service first.
func (s *Service) SetCrawler(c Crawler, root string) {
	s.crawler = c
	s.crawlRoot = root
}

// CreateTask registers a new task. Call SetReady once every item has been added.
func (s *Service) CreateTask(description string) *Task {
	t := newTask(s, description, false)
	s.tasks.add(t)
	return t
}

// DefaultTask returns the task that owns untracked work. It never completes.
func (s *Service) DefaultTask() *Task { return s.defaultTask }

// Tasks returns the active (not yet done) tasks.
func (s *Service) Tasks() []*Task { return s.tasks.snapshot() }

// AddResource queues a resource on the default task.
func (s *Service) AddResource(r Resource, pri Priority) { s.defaultTask.AddResource(r, pri) }

// AddResourceID queues an identifier on the default task.
func (s *Service) AddResourceID(id string, pri Priority) { s.defaultTask.AddResourceID(id, pri) }

// AddRunnable queues deferred work on the default task.
func (s *Service) AddRunnable(r Runnable, pri Priority) { s.defaultTask.AddRunnable(r, pri) }

// queueItem places a registered item on the run or item queue.
// Items submitted after shutdown are completed as failed.
func (s *Service) queueItem(i *Item) {
	s.queueMu.RLock()
	if s.closed {
		s.queueMu.RUnlock()
		slog.Debug("item rejected, service shut down", slog.String("id", i.id))
		s.completeItem(i, false)
		return
	}
	defer s.queueMu.RUnlock()

	if i.run != nil {
		s.runQueue.Put(dataMessage(i))
		s.metrics.Enqueued("run")
		return
	}
	i.seq = s.seq.stamp(i.id)
	s.itemQueue.Put(dataMessage(i))
	s.metrics.Enqueued("item")
}

// DeleteResource queues removal of the document for id. Deletes need no
// preprocessing, so they go straight to the index queue when it has room
// and fall back to the item queue otherwise. It never blocks.
func (s *Service) DeleteResource(id string, pri Priority) {
	i := newResourceItem(nil, OpDelete, id, nil, pri)

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return
	}

	i.seq = s.seq.stamp(id)
	if s.indexQueue.Offer(dataMessage(i)) {
		s.metrics.Enqueued("index")
		return
	}
	s.itemQueue.Put(dataMessage(i))
	s.metrics.Enqueued("item")
}

// DeleteContainer removes every document in a container as background work.
func (s *Service) DeleteContainer(containerID string) {
	s.defaultTask.AddRunnable(func(ctx context.Context) error {
		return s.coord.deleteContainer(ctx, containerID)
	}, PriorityBackground)
}

// AddResourceResolver registers resolver for identifiers of the form "prefix:rest".
// A later registration for the same prefix replaces the earlier one.
func (s *Service) AddResourceResolver(prefix string, resolver Resolver) {
	s.resolvers.add(prefix, resolver)
}

// Resolve looks up identifier through the resolver registry. It returns a nil
// Resource when no resolver matches.
func (s *Service) Resolve(ctx context.Context, identifier string) (Resource, error) {
	return s.resolvers.resolve(ctx, identifier)
}

// AddSearchCategory registers a search category.
func (s *Service) AddSearchCategory(c SearchCategory) { s.categories.add(c) }

// SearchCategories returns the registered categories.
func (s *Service) SearchCategories() []SearchCategory { return s.categories.list() }

// AddParticipantIDs buffers participant observations until the run queue next drains.
func (s *Service) AddParticipantIDs(ps ...Participant) {
	if len(ps) == 0 {
		return
	}
	s.participantsMu.Lock()
	s.participants = append(s.participants, ps...)
	s.participantsMu.Unlock()
}

func (s *Service) takeParticipants() []Participant {
	s.participantsMu.Lock()
	defer s.participantsMu.Unlock()
	ps := s.participants
	s.participants = nil
	return ps
}

// IsBusy reports whether producers should hold off. It is advisory only.
func (s *Service) IsBusy() bool {
	pending := s.itemQueue.Len() + 10*s.runQueue.Len() + s.indexQueue.Len()
	return pending > s.cfg.BusyThreshold
}

// Start starts the workers on first use and resumes processing.
func (s *Service) Start() error {
	if s.life.current() == StateShuttingDown {
		return fterrors.ErrShuttingDown
	}

	s.startOnce.Do(s.startWorkers)
	if s.life.transition(StateRunning) {
		slog.Info("search service running",
			slog.Int("preprocess_workers", s.cfg.PreprocessWorkers),
			slog.Int("index_workers", s.cfg.IndexWorkers))
		if s.crawler != nil && s.crawlRoot != "" {
			s.crawler.StartContinuous(s.crawlRoot)
		}
	}
	return nil
}

// Pause stops workers from taking new work and commits, so a pause is a durable checkpoint.
func (s *Service) Pause(ctx context.Context) error {
	if s.life.current() == StateShuttingDown {
		return fterrors.ErrShuttingDown
	}
	if s.life.transition(StatePaused) {
		slog.Info("search service paused")
	}
	return s.coord.commit(ctx)
}

// IsRunning reports whether workers are processing work.
func (s *Service) IsRunning() bool { return s.life.current() == StateRunning }

// State returns the lifecycle state.
func (s *Service) State() State { return s.life.current() }

// Commit forces a synchronous commit.
func (s *Service) Commit(ctx context.Context) error { return s.coord.commit(ctx) }

// Clear wipes the entire index.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.coord.clear(ctx); err != nil {
		return err
	}
	s.seq.reset()
	for _, l := range s.clearListeners {
		if err := l.OnClear(ctx); err != nil {
			slog.Warn("clear listener failed", fterrors.LogAttrs(err)...)
		}
	}
	slog.Info("search index cleared")
	return nil
}

// PurgeQueues cancels every task and empties the queues. Purged items are not indexed.
func (s *Service) PurgeQueues() {
	for _, t := range s.tasks.snapshot() {
		t.Cancel()
	}
	n := s.failAll(s.runQueue.Drain()) + s.failAll(s.itemQueue.Drain()) + s.failAll(s.indexQueue.Drain())
	slog.Info("search queues purged", slog.Int("items", n))
}

// Status returns a snapshot of the pipeline.
func (s *Service) Status() Status {
	run, item, idx := s.runQueue.Len(), s.itemQueue.Len(), s.indexQueue.Len()
	s.metrics.QueueDepths(run, item, idx)

	tasks := s.tasks.snapshot()
	stats := make([]TaskStats, 0, len(tasks))
	for _, t := range tasks {
		stats = append(stats, t.Stats())
	}
	return Status{
		State:              s.life.current().String(),
		Busy:               s.IsBusy(),
		RunQueue:           run,
		ItemQueue:          item,
		IndexQueue:         idx,
		IndexQueueCapacity: s.indexQueue.Cap(),
		PendingCommit:      s.coord.pending(),
		Tasks:              stats,
	}
}

// Shutdown stops the workers, fails anything still queued, performs the final
// commit and shuts the engine down. Later calls return the first result.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Service) shutdown(ctx context.Context) error {
	s.life.transition(StateShuttingDown)
	s.cancel()

	if s.started.Load() {
		timer := time.NewTimer(s.cfg.ShutdownTimeout)
		select {
		case <-s.workersDone:
		case <-timer.C:
			slog.Warn("search workers did not stop in time",
				slog.String("code", fterrors.ErrCodeShutdownSlow),
				slog.Duration("timeout", s.cfg.ShutdownTimeout))
		case <-ctx.Done():
		}
		timer.Stop()
	}

	s.queueMu.Lock()
	s.closed = true
	s.queueMu.Unlock()

	n := s.failAll(s.runQueue.Drain()) + s.failAll(s.itemQueue.Drain()) + s.failAll(s.indexQueue.Drain())
	if n > 0 {
		slog.Info("abandoned queued items at shutdown", slog.Int("items", n))
	}

	err := s.coord.shutdown(context.WithoutCancel(ctx))
	slog.Info("search service stopped")
	return err
}

func (s *Service) isClosed() bool {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	return s.closed
}

// failAll completes every data message as failed and returns how many there were.
func (s *Service) failAll(msgs []message) int {
	n := 0
	for _, m := range msgs {
		if m.isCommitCheck() {
			continue
		}
		s.completeItem(m.item, false)
		n++
	}
	return n
}

func (s *Service) completeItem(i *Item, success bool) {
	i.complete(success)
	s.metrics.Completed(success)
}
