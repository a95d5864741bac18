package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeEngine records every call and flags any overlapping use.
type fakeEngine struct {
	mu         sync.Mutex
	events     []string
	indexed    []indexCall
	deleted    []string
	containers []string
	commits    int
	clears     int
	shutdowns  int

	commitErr   error
	indexErr    map[string]error
	commitDelay time.Duration

	inCall  atomic.Int32
	overlap atomic.Bool
}

type indexCall struct {
	id  string
	res Resource
	doc Document
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{indexErr: map[string]error{}}
}

func (e *fakeEngine) enter() {
	if e.inCall.Add(1) > 1 {
		e.overlap.Store(true)
	}
}

func (e *fakeEngine) leave() { e.inCall.Add(-1) }

func (e *fakeEngine) Index(_ context.Context, id string, r Resource, doc Document) error {
	e.enter()
	defer e.leave()
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.indexErr[id]; err != nil {
		return err
	}
	e.indexed = append(e.indexed, indexCall{id: id, res: r, doc: doc})
	e.events = append(e.events, "index:"+id)
	return nil
}

func (e *fakeEngine) DeleteDocument(_ context.Context, id string) error {
	e.enter()
	defer e.leave()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, id)
	e.events = append(e.events, "delete:"+id)
	return nil
}

func (e *fakeEngine) Commit(context.Context) error {
	e.enter()
	defer e.leave()
	if e.commitDelay > 0 {
		time.Sleep(e.commitDelay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commits++
	e.events = append(e.events, "commit")
	return e.commitErr
}

func (e *fakeEngine) DeleteContainer(_ context.Context, id string) error {
	e.enter()
	defer e.leave()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.containers = append(e.containers, id)
	return nil
}

func (e *fakeEngine) Clear(context.Context) error {
	e.enter()
	defer e.leave()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clears++
	return nil
}

func (e *fakeEngine) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdowns++
	return nil
}

func (e *fakeEngine) commitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commits
}

func (e *fakeEngine) indexedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.indexed))
	for _, c := range e.indexed {
		ids = append(ids, c.id)
	}
	return ids
}

func (e *fakeEngine) deletedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deleted...)
}

func (e *fakeEngine) eventLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type fakeResource struct {
	name    string
	missing atomic.Bool

	mu          sync.Mutex
	lastIndexed time.Time
}

func newFakeResource(name string) *fakeResource { return &fakeResource{name: name} }

func (r *fakeResource) Name() string { return r.name }
func (r *fakeResource) Exists() bool { return !r.missing.Load() }

func (r *fakeResource) SetLastIndexed(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastIndexed = t
}

func (r *fakeResource) indexedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastIndexed
}

// testResolver resolves every remainder to a fake resource and records the calls.
func testResolver() (Resolver, *sync.Map) {
	seen := &sync.Map{}
	return ResolverFunc(func(_ context.Context, rest string) (Resource, error) {
		r := newFakeResource(rest)
		seen.Store(rest, r)
		return r, nil
	}), seen
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fastConfig keeps polling and commit timing short so tests settle quickly.
func fastConfig() Config {
	return Config{
		ItemPollTimeout: 10 * time.Millisecond,
		RunPollTimeout:  20 * time.Millisecond,
		CommitInterval:  20 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Engine == nil {
		opts.Engine = newFakeEngine()
	}
	if opts.Config == (Config{}) {
		opts.Config = fastConfig()
	}
	svc, err := NewService(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}
