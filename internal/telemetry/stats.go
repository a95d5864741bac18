package telemetry

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Config tunes a QueryStats.
type Config struct {
	// TopTerms bounds the in-memory term table. Default: 100
	TopTerms int
	// ZeroResults bounds the remembered zero-result queries. Default: 100
	ZeroResults int
	// FlushInterval is how often Run writes to the store. Default: 60s
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopTerms <= 0 {
		c.TopTerms = 100
	}
	if c.ZeroResults <= 0 {
		c.ZeroResults = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Minute
	}
	return c
}

// Delta is what accumulated between two flushes.
type Delta struct {
	Date        string
	Queries     int64
	ZeroResults int64
	Terms       map[string]int64
	ZeroQueries []QueryEvent
	Latency     map[LatencyBucket]int64
}

func newDelta(now time.Time) *Delta {
	return &Delta{
		Date:    now.UTC().Format(time.DateOnly),
		Terms:   map[string]int64{},
		Latency: map[LatencyBucket]int64{},
	}
}

func (d *Delta) empty() bool { return d.Queries == 0 }

// Store persists flushed deltas.
type Store interface {
	Save(ctx context.Context, d *Delta) error
	Load(ctx context.Context, topTerms, zeroResults int) (Snapshot, error)
}

// QueryStats aggregates query events in memory and flushes them to an
// optional store. Safe for concurrent use.
type QueryStats struct {
	cfg   Config
	store Store
	now   func() time.Time

	mu      sync.Mutex
	pending *Delta
	total   Snapshot
	terms   *lru.Cache[string, int64]
	zero    *ring[string]
}

// New creates a QueryStats. A nil store keeps statistics in memory only.
func New(store Store, cfg Config) *QueryStats {
	cfg = cfg.withDefaults()
	terms, _ := lru.New[string, int64](cfg.TopTerms)
	return &QueryStats{
		cfg:     cfg,
		store:   store,
		now:     time.Now,
		pending: newDelta(time.Now()),
		total:   Snapshot{Latency: map[LatencyBucket]int64{}},
		terms:   terms,
		zero:    newRing[string](cfg.ZeroResults),
	}
}

// Record adds one query.
func (s *QueryStats) Record(e QueryEvent) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	bucket := LatencyToBucket(e.Latency)
	terms := ExtractTerms(e.Query)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Queries++
	s.pending.Latency[bucket]++
	s.total.Queries++
	s.total.Latency[bucket]++
	for _, t := range terms {
		s.pending.Terms[t]++
		n, _ := s.terms.Get(t)
		s.terms.Add(t, n+1)
	}
	if e.Results == 0 {
		s.pending.ZeroResults++
		s.pending.ZeroQueries = append(s.pending.ZeroQueries, e)
		s.total.ZeroResults++
		s.zero.add(e.Query)
	}
}

// Flush writes pending counts to the store. On failure they are kept for the next flush.
func (s *QueryStats) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	s.mu.Lock()
	d := s.pending
	s.pending = newDelta(s.now())
	s.mu.Unlock()

	if d.empty() {
		return nil
	}
	if err := s.store.Save(ctx, d); err != nil {
		s.mu.Lock()
		s.pending = merge(d, s.pending)
		s.mu.Unlock()
		return err
	}
	return nil
}

// merge folds newer into older, keeping older's date.
func merge(older, newer *Delta) *Delta {
	older.Queries += newer.Queries
	older.ZeroResults += newer.ZeroResults
	older.ZeroQueries = append(older.ZeroQueries, newer.ZeroQueries...)
	for t, n := range newer.Terms {
		older.Terms[t] += n
	}
	for b, n := range newer.Latency {
		older.Latency[b] += n
	}
	return older
}

// Snapshot returns persisted statistics after a flush, or the in-memory
// statistics since New when there is no store.
func (s *QueryStats) Snapshot(ctx context.Context, topN int) (Snapshot, error) {
	if topN <= 0 {
		topN = 10
	}
	if s.store != nil {
		if err := s.Flush(ctx); err != nil {
			return Snapshot{}, err
		}
		return s.store.Load(ctx, topN, s.cfg.ZeroResults)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Queries:           s.total.Queries,
		ZeroResults:       s.total.ZeroResults,
		Latency:           make(map[LatencyBucket]int64, len(s.total.Latency)),
		RecentZeroResults: s.zero.newest(s.cfg.ZeroResults),
	}
	for b, n := range s.total.Latency {
		snap.Latency[b] = n
	}
	for _, t := range s.terms.Keys() {
		if n, ok := s.terms.Peek(t); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: t, Count: n})
		}
	}
	slices.SortFunc(snap.TopTerms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
	if len(snap.TopTerms) > topN {
		snap.TopTerms = snap.TopTerms[:topN]
	}
	return snap, nil
}

// Run flushes every FlushInterval until ctx ends, then flushes once more.
func (s *QueryStats) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to flush query statistics", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				slog.Warn("failed to flush query statistics", slog.String("error", err.Error()))
			}
		}
	}
}
