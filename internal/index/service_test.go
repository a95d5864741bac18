package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/metrics"
)

const settle = 2 * time.Second

func TestNewService_RequiresEngine(t *testing.T) {
	_, err := NewService(Options{})

	require.Error(t, err)
	assert.Equal(t, fterrors.ErrCodeInvalidInput, fterrors.GetCode(err))
}

func TestService_EndToEndIndexAndCommit(t *testing.T) {
	// Given: a running service with a resolver for "test"
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine, Metrics: metrics.NewPipeline()})
	resolver, seen := testResolver()
	svc.AddResourceResolver("test", resolver)
	require.NoError(t, svc.Start())

	// When: adding one resource by identifier
	svc.AddResourceID("test:doc1", PriorityBulk)

	// Then: it is indexed once and an idle commit follows
	require.Eventually(t, func() bool {
		return !svc.IsBusy() && engine.commitCount() >= 1
	}, settle, 5*time.Millisecond)

	engine.mu.Lock()
	require.Len(t, engine.indexed, 1)
	call := engine.indexed[0]
	engine.mu.Unlock()

	res, ok := seen.Load("doc1")
	require.True(t, ok, "resolver saw the remainder after the prefix")
	assert.Equal(t, "test:doc1", call.id)
	assert.Same(t, res, call.res)
	assert.NotNil(t, call.doc)

	log := engine.eventLog()
	assert.Equal(t, "index:test:doc1", log[0])
	assert.Equal(t, "commit", log[1])
}

func TestService_DeleteBypassesItemQueue(t *testing.T) {
	// Given: a service that has not started
	svc := newTestService(t, Options{})

	// When: deleting a resource
	svc.DeleteResource("test:gone", PriorityItem)

	// Then: the delete sits on the index queue, not the item queue
	assert.Zero(t, svc.itemQueue.Len())
	m, ok := svc.indexQueue.TryTake()
	require.True(t, ok)
	assert.Equal(t, OpDelete, m.item.Op())
	assert.Equal(t, "test:gone", m.item.ID())
}

func TestService_DeleteFallsBackWhenIndexQueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.IndexQueueCapacity = 1
	svc := newTestService(t, Options{Config: cfg})

	svc.DeleteResource("test:a", PriorityItem)
	svc.DeleteResource("test:b", PriorityItem)

	assert.Equal(t, 1, svc.indexQueue.Len())
	assert.Equal(t, 1, svc.itemQueue.Len())
}

func TestService_IsBusyThreshold(t *testing.T) {
	// Given: a stopped pipeline with a busy threshold of 10
	cfg := fastConfig()
	cfg.BusyThreshold = 10
	svc := newTestService(t, Options{Config: cfg})

	// When: 10 items are queued
	for _, id := range ids("test:", 10) {
		svc.AddResourceID(id, PriorityBulk)
	}
	// Then: not yet busy
	assert.False(t, svc.IsBusy())

	// When: one more arrives
	svc.AddResourceID("test:extra", PriorityBulk)
	assert.True(t, svc.IsBusy())

	// When: draining below the threshold
	_, ok := svc.itemQueue.TryTake()
	require.True(t, ok)
	assert.False(t, svc.IsBusy())
}

func TestService_IsBusyWeightsRunnables(t *testing.T) {
	cfg := fastConfig()
	cfg.BusyThreshold = 10
	svc := newTestService(t, Options{Config: cfg})

	svc.AddRunnable(func(context.Context) error { return nil }, PriorityBulk)
	assert.False(t, svc.IsBusy())

	svc.AddResourceID("test:a", PriorityBulk)
	assert.True(t, svc.IsBusy())
}

func TestService_ShutdownDrainsAndCommitsOnce(t *testing.T) {
	// Given: a task with 50 resources on a running service
	engine := newFakeEngine()
	cfg := fastConfig()
	cfg.CommitInterval = time.Hour
	svc := newTestService(t, Options{Engine: engine, Config: cfg})
	resolver, _ := testResolver()
	svc.AddResourceResolver("test", resolver)
	task := svc.CreateTask("fifty")
	require.NoError(t, svc.Start())
	for _, id := range ids("test:r", 50) {
		task.AddResourceID(id, PriorityBulk)
	}
	require.NoError(t, task.SetReady())

	// When: shutting down immediately
	require.NoError(t, svc.Shutdown(context.Background()))

	// Then: every item completed, none indexed twice
	require.True(t, task.IsDone())
	stats := task.Stats()
	indexed := engine.indexedIDs()
	assert.Equal(t, len(indexed), stats.Succeeded)
	assert.Equal(t, 50, stats.Succeeded+stats.Failed)

	seen := map[string]bool{}
	for _, id := range indexed {
		assert.False(t, seen[id], "indexed twice: %s", id)
		seen[id] = true
	}

	// Then: exactly one commit, after the last index write
	log := engine.eventLog()
	if len(indexed) == 0 {
		assert.Zero(t, engine.commitCount())
	} else {
		assert.Equal(t, 1, engine.commitCount())
		assert.Equal(t, "commit", log[len(log)-1])
	}
	assert.Equal(t, 1, engine.shutdowns)
}

func TestService_ShutdownIsIdempotent(t *testing.T) {
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine})
	require.NoError(t, svc.Start())

	require.NoError(t, svc.Shutdown(context.Background()))
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Equal(t, 1, engine.shutdowns)
	assert.Equal(t, StateShuttingDown, svc.State())
	assert.ErrorIs(t, svc.Start(), fterrors.ErrShuttingDown)
}

func TestService_ShutdownWithoutStart(t *testing.T) {
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine})
	task := svc.CreateTask("queued")
	task.AddResourceID("test:a", PriorityBulk)
	require.NoError(t, task.SetReady())

	require.NoError(t, svc.Shutdown(context.Background()))

	assert.True(t, task.IsDone())
	assert.Equal(t, 1, task.Stats().Failed)
	assert.Zero(t, engine.commitCount())
}

func TestService_WorkAfterShutdownFails(t *testing.T) {
	svc := newTestService(t, Options{})
	require.NoError(t, svc.Shutdown(context.Background()))

	task := svc.CreateTask("late")
	task.AddResourceID("test:late", PriorityBulk)
	require.NoError(t, task.SetReady())

	assert.True(t, task.IsDone())
	assert.Equal(t, 1, task.Stats().Failed)
}

func TestService_PauseCommitsAndStopsWork(t *testing.T) {
	// Given: a running service
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine})
	resolver, _ := testResolver()
	svc.AddResourceResolver("test", resolver)
	require.NoError(t, svc.Start())
	require.True(t, svc.IsRunning())

	// When: pausing
	require.NoError(t, svc.Pause(context.Background()))

	// Then: a commit happened and new work waits
	assert.False(t, svc.IsRunning())
	assert.Equal(t, 1, engine.commitCount())

	// let any poll that was in flight at pause time expire
	time.Sleep(50 * time.Millisecond)
	svc.AddResourceID("test:held", PriorityBulk)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, engine.indexedIDs())

	// When: resuming
	require.NoError(t, svc.Start())
	require.Eventually(t, func() bool { return len(engine.indexedIDs()) == 1 }, settle, 5*time.Millisecond)
}

func TestService_ItemFailuresAreIsolated(t *testing.T) {
	// Given: a preprocessor that skips, errors or panics for some resources
	engine := newFakeEngine()
	engine.indexErr["test:write-fails"] = errors.New("write failed")
	pre := PreprocessorFunc(func(_ context.Context, id string, _ Resource) (Document, error) {
		switch {
		case strings.HasSuffix(id, "skip"):
			return nil, nil
		case strings.HasSuffix(id, "error"):
			return nil, errors.New("bad content")
		case strings.HasSuffix(id, "panic"):
			panic("preprocessor bug")
		}
		return Document{"body": id}, nil
	})
	svc := newTestService(t, Options{Engine: engine, Preprocessor: pre})
	resolver, _ := testResolver()
	svc.AddResourceResolver("test", resolver)
	task := svc.CreateTask("mixed")

	// When: submitting good and bad items
	for _, id := range []string{"test:skip", "test:error", "test:panic", "test:write-fails", "nope:unresolvable", "test:ok"} {
		task.AddResourceID(id, PriorityBulk)
	}
	require.NoError(t, task.SetReady())
	require.NoError(t, svc.Start())

	// Then: the task finishes with only the good item indexed
	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
	stats := task.Stats()
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 5, stats.Failed)
	assert.Equal(t, []string{"test:ok"}, engine.indexedIDs())
}

func TestService_RunnableErrorsAreIsolated(t *testing.T) {
	svc := newTestService(t, Options{})
	task := svc.CreateTask("runnables")
	var ran atomic.Bool

	task.AddRunnable(func(context.Context) error { panic("runnable bug") }, PriorityItem)
	task.AddRunnable(func(context.Context) error { return errors.New("failed") }, PriorityItem)
	task.AddRunnable(func(context.Context) error { ran.Store(true); return nil }, PriorityBulk)
	require.NoError(t, task.SetReady())
	require.NoError(t, svc.Start())

	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
	assert.True(t, ran.Load())
	assert.Equal(t, 2, task.Stats().Failed)
}

func TestService_MissingResourceFails(t *testing.T) {
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine})
	res := newFakeResource("test:vanished")
	res.missing.Store(true)
	task := svc.CreateTask("missing")

	task.AddResource(res, PriorityBulk)
	require.NoError(t, task.SetReady())
	require.NoError(t, svc.Start())

	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
	assert.Equal(t, 1, task.Stats().Failed)
	assert.Empty(t, engine.indexedIDs())
}

func TestService_RecordsLastIndexed(t *testing.T) {
	svc := newTestService(t, Options{})
	res := newFakeResource("test:stamped")
	task := svc.CreateTask("stamp")

	task.AddResource(res, PriorityBulk)
	require.NoError(t, task.SetReady())
	require.NoError(t, svc.Start())

	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
	assert.False(t, res.indexedAt().IsZero())
}

func TestService_LastSubmissionWins(t *testing.T) {
	// Given: add-then-delete for one id and delete-then-add for another, queued before start
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine})
	resolver, _ := testResolver()
	svc.AddResourceResolver("test", resolver)

	svc.AddResourceID("test:a", PriorityBulk)
	svc.DeleteResource("test:a", PriorityBulk)
	svc.DeleteResource("test:b", PriorityBulk)
	svc.AddResourceID("test:b", PriorityBulk)

	// When: the pipeline runs
	require.NoError(t, svc.Start())

	// Then: a ends deleted and b ends indexed, whatever order the stages saw them in
	require.Eventually(t, func() bool {
		return svc.itemQueue.Len() == 0 && svc.indexQueue.Len() == 0 && len(engine.indexedIDs()) == 1
	}, settle, 5*time.Millisecond)
	assert.Equal(t, []string{"test:b"}, engine.indexedIDs())
	assert.Equal(t, []string{"test:a"}, engine.deletedIDs())
}

func TestService_DeleteContainer(t *testing.T) {
	engine := newFakeEngine()
	svc := newTestService(t, Options{Engine: engine})
	require.NoError(t, svc.Start())

	svc.DeleteContainer("project-1")

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.containers) == 1 && engine.commits >= 1
	}, settle, 5*time.Millisecond)
	assert.Equal(t, []string{"project-1"}, engine.containers)
}

type recordingSink struct {
	mu   sync.Mutex
	seen []Participant
}

func (s *recordingSink) Upsert(_ context.Context, ps []Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, ps...)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestService_ParticipantsFlushWhenRunQueueDrains(t *testing.T) {
	// Given: buffered participant ids and an idle hook
	sink := &recordingSink{}
	var idle atomic.Int32
	svc := newTestService(t, Options{
		ParticipantSink: sink,
		IdleHooks: []IdleHook{IdleHookFunc(func(context.Context) error {
			idle.Add(1)
			return nil
		})},
	})
	svc.AddParticipantIDs(
		Participant{Container: "c1", ParticipantID: "P-100"},
		Participant{Container: "c1", ParticipantID: "P-101"},
	)

	// When: the run stage finishes a runnable
	svc.AddRunnable(func(context.Context) error { return nil }, PriorityBulk)
	require.NoError(t, svc.Start())

	// Then: the buffer reaches the sink once and idle hooks run
	require.Eventually(t, func() bool { return sink.count() == 2 }, settle, 5*time.Millisecond)
	assert.Positive(t, idle.Load())
	assert.Empty(t, svc.takeParticipants())
}

type clearRecorder struct{ calls atomic.Int32 }

func (c *clearRecorder) OnClear(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestService_ClearNotifiesListeners(t *testing.T) {
	engine := newFakeEngine()
	listener := &clearRecorder{}
	svc := newTestService(t, Options{Engine: engine, ClearListeners: []ClearListener{listener}})

	require.NoError(t, svc.Clear(context.Background()))

	assert.Equal(t, 1, engine.clears)
	assert.EqualValues(t, 1, listener.calls.Load())
}

func TestService_PurgeQueues(t *testing.T) {
	svc := newTestService(t, Options{})
	task := svc.CreateTask("purged")
	task.AddResourceID("test:a", PriorityBulk)
	task.AddRunnable(func(context.Context) error { return nil }, PriorityBulk)
	svc.DeleteResource("test:b", PriorityBulk)

	svc.PurgeQueues()

	assert.True(t, task.IsDone())
	st := svc.Status()
	assert.Zero(t, st.RunQueue+st.ItemQueue+st.IndexQueue)
	assert.Contains(t, svc.Tasks(), svc.DefaultTask())
}

type fakeCrawler struct {
	mu    sync.Mutex
	roots []string
}

func (c *fakeCrawler) AddPathToCrawl(string) {}

func (c *fakeCrawler) StartContinuous(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots = append(c.roots, path)
}

func TestService_StartStartsCrawler(t *testing.T) {
	crawler := &fakeCrawler{}
	svc := newTestService(t, Options{Crawler: crawler, CrawlRoot: "/srv/docs"})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())

	assert.Equal(t, []string{"/srv/docs"}, crawler.roots)
}

func TestService_Status(t *testing.T) {
	cfg := fastConfig()
	cfg.IndexQueueCapacity = 7
	svc := newTestService(t, Options{Config: cfg})
	svc.CreateTask("visible")
	svc.AddResourceID("test:a", PriorityBulk)

	st := svc.Status()

	assert.Equal(t, "paused", st.State)
	assert.Equal(t, 1, st.ItemQueue)
	assert.Equal(t, 7, st.IndexQueueCapacity)
	assert.Len(t, st.Tasks, 2)
}
