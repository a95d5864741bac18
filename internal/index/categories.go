package index

import (
	"sync"
	"sync/atomic"
)

// SearchCategory labels a family of documents (e.g. "wiki", "file").
type SearchCategory struct {
	Name        string
	Description string
}

// categoryRegistry is copy-on-write: readers load an immutable snapshot without locking.
type categoryRegistry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]SearchCategory]
}

func newCategoryRegistry() *categoryRegistry {
	r := &categoryRegistry{}
	empty := []SearchCategory{}
	r.snapshot.Store(&empty)
	return r
}

func (r *categoryRegistry) add(c SearchCategory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snapshot.Load()
	next := make([]SearchCategory, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, c)
	r.snapshot.Store(&next)
}

// list returns the current snapshot. Callers must not modify it.
func (r *categoryRegistry) list() []SearchCategory {
	return *r.snapshot.Load()
}
