package index

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sequencer stamps resource submissions so the index stage can tell when an
// add or delete has been overtaken by a later submission for the same identifier.
// Identifiers evicted from the cache are never treated as superseded.
type sequencer struct {
	mu     sync.Mutex
	next   uint64
	latest *lru.Cache[string, uint64]
}

func newSequencer(size int) (*sequencer, error) {
	cache, err := lru.New[string, uint64](size)
	if err != nil {
		return nil, err
	}
	return &sequencer{latest: cache}, nil
}

// stamp records a new submission for id and returns its sequence number.
func (s *sequencer) stamp(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	s.latest.Add(id, s.next)
	return s.next
}

// superseded reports whether a later submission exists for id.
func (s *sequencer) superseded(id string, seq uint64) bool {
	if seq == 0 {
		return false
	}
	latest, ok := s.latest.Peek(id)
	return ok && latest > seq
}

// reset forgets every identifier.
func (s *sequencer) reset() {
	s.latest.Purge()
}
