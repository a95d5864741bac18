package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
)

// TaskStats is a point-in-time view of a task's progress.
type TaskStats struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Pending     int       `json:"pending"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Ready       bool      `json:"ready"`
	Done        bool      `json:"done"`
	Created     time.Time `json:"created"`
}

// Task groups items into a logical unit of work so callers can wait for it.
// A task is done once it has been marked ready and every registered item has completed.
// Failed items count as completed.
type Task struct {
	id          string
	description string
	svc         *Service
	isDefault   bool
	created     time.Time

	mu          sync.Mutex
	outstanding map[*Item]struct{}
	ready       bool
	finished    bool
	succeeded   int
	failed      int
	done        chan struct{}
}

func newTask(svc *Service, description string, isDefault bool) *Task {
	return &Task{
		id:          uuid.NewString(),
		description: description,
		svc:         svc,
		isDefault:   isDefault,
		created:     time.Now(),
		outstanding: make(map[*Item]struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the task's unique id.
func (t *Task) ID() string { return t.id }

// Description returns the description given at creation.
func (t *Task) Description() string { return t.description }

// AddResource queues a resolved resource for indexing.
func (t *Task) AddResource(r Resource, pri Priority) {
	t.submit(newResourceItem(t, OpAdd, r.Name(), r, pri))
}

// AddResourceID queues an identifier ("prefix:rest") for resolution and indexing.
func (t *Task) AddResourceID(id string, pri Priority) {
	t.submit(newResourceItem(t, OpAdd, id, nil, pri))
}

// AddRunnable queues deferred work on the run stage.
func (t *Task) AddRunnable(r Runnable, pri Priority) {
	t.submit(newRunnableItem(t, r, pri))
}

// submit registers the item before queueing it, so completion can never
// be observed ahead of registration.
func (t *Task) submit(i *Item) {
	t.addItem(i)
	t.svc.queueItem(i)
}

func (t *Task) addItem(i *Item) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ready {
		slog.Warn("item added to a task already marked ready",
			slog.String("task", t.description),
			slog.String("id", i.id))
	}
	t.outstanding[i] = struct{}{}
}

// completeItem records an item's outcome and finishes the task when it becomes done.
func (t *Task) completeItem(i *Item, success bool) {
	t.mu.Lock()
	if _, ok := t.outstanding[i]; ok {
		delete(t.outstanding, i)
		if success {
			t.succeeded++
		} else {
			t.failed++
		}
	}
	finish := t.checkDoneLocked()
	t.mu.Unlock()

	if finish {
		t.finish()
	}
}

// SetReady declares that no more items will be added.
// The default task accepts work for the life of the service and cannot be made ready.
func (t *Task) SetReady() error {
	if t.isDefault {
		return fterrors.ErrDefaultTaskReady
	}

	t.mu.Lock()
	t.ready = true
	finish := t.checkDoneLocked()
	t.mu.Unlock()

	if finish {
		t.finish()
	}
	return nil
}

func (t *Task) checkDoneLocked() bool {
	if t.finished || !t.ready || len(t.outstanding) > 0 {
		return false
	}
	t.finished = true
	return true
}

func (t *Task) finish() {
	t.svc.tasks.remove(t)
	close(t.done)
	stats := t.Stats()
	slog.Debug("index task done",
		slog.String("task", t.description),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed))
}

// Cancel drops the task's outstanding items from tracking. Items already in
// the pipeline still run; their completions are ignored.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.outstanding = make(map[*Item]struct{})
	if !t.isDefault {
		t.ready = true
	}
	finish := t.checkDoneLocked()
	t.mu.Unlock()

	if finish {
		t.finish()
	}
}

// IsDone reports whether the task has finished.
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the task finishes. It never closes for the default task.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is done or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of outstanding items.
func (t *Task) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.outstanding)
}

// Stats returns a snapshot of the task's counters.
func (t *Task) Stats() TaskStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskStats{
		ID:          t.id,
		Description: t.description,
		Pending:     len(t.outstanding),
		Succeeded:   t.succeeded,
		Failed:      t.failed,
		Ready:       t.ready,
		Done:        t.finished,
		Created:     t.created,
	}
}

// taskRegistry is the list of active (not yet done) tasks.
type taskRegistry struct {
	mu    sync.Mutex
	tasks []*Task
}

func (r *taskRegistry) add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

func (r *taskRegistry) remove(t *Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.tasks {
		if cur == t {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return true
		}
	}
	return false
}

func (r *taskRegistry) contains(t *Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.tasks {
		if cur == t {
			return true
		}
	}
	return false
}

func (r *taskRegistry) snapshot() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}
