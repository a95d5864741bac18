package crawler

import (
	"log/slog"
	"sync"
	"time"
)

// changeOp is the kind of file system change seen by the watcher.
type changeOp int

const (
	opCreate changeOp = iota
	opModify
	opDelete
)

func (op changeOp) String() string {
	switch op {
	case opCreate:
		return "create"
	case opModify:
		return "modify"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// change is one root-relative path and what happened to it.
type change struct {
	rel string
	op  changeOp
}

// debouncer coalesces bursts of changes per path and emits them as one batch
// once the path set has been quiet for the window:
//   - create then modify stays a create
//   - create then delete cancels out
//   - delete then create becomes a modify
//   - anything else keeps the latest op
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]change
	order   []string
	timer   *time.Timer
	stopped bool
	out     chan []change
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]change),
		out:     make(chan []change, 16),
	}
}

func (d *debouncer) add(c change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	prev, seen := d.pending[c.rel]
	switch {
	case !seen:
		d.pending[c.rel] = c
		d.order = append(d.order, c.rel)
	case prev.op == opCreate && c.op == opModify:
	case prev.op == opCreate && c.op == opDelete:
		delete(d.pending, c.rel)
	case prev.op == opDelete && c.op == opCreate:
		d.pending[c.rel] = change{rel: c.rel, op: opModify}
	default:
		d.pending[c.rel] = c
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]change, 0, len(d.pending))
	for _, rel := range d.order {
		if c, ok := d.pending[rel]; ok {
			batch = append(batch, c)
			delete(d.pending, rel)
		}
	}
	d.order = d.order[:0]

	select {
	case d.out <- batch:
	default:
		slog.Warn("crawler change buffer full, dropping batch", slog.Int("batch_size", len(batch)))
	}
}

func (d *debouncer) output() <-chan []change { return d.out }

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
