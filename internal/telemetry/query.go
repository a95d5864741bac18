// Package telemetry keeps local statistics about search queries: volume,
// latency, frequent terms and queries that found nothing. Nothing leaves
// the machine.
package telemetry

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the latency buckets in ascending order.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket returns the bucket for d.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one executed search.
type QueryEvent struct {
	Query   string
	Results int
	Latency time.Duration
	Time    time.Time
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot summarizes recorded queries.
type Snapshot struct {
	Queries           int64                   `json:"queries"`
	ZeroResults       int64                   `json:"zero_results"`
	TopTerms          []TermCount             `json:"top_terms"`
	RecentZeroResults []string                `json:"recent_zero_results"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
}

// ZeroResultPercent is the share of queries that found nothing.
func (s Snapshot) ZeroResultPercent() float64 {
	if s.Queries == 0 {
		return 0
	}
	return float64(s.ZeroResults) / float64(s.Queries) * 100
}

// ExtractTerms splits a query-string query into lowercase terms of three or
// more characters, dropping field prefixes and boolean operators.
func ExtractTerms(query string) []string {
	var terms []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if _, value, ok := strings.Cut(tok, ":"); ok {
			tok = value
		}
		word := strings.FieldsFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		for _, w := range word {
			if len([]rune(w)) < 3 || w == "and" || w == "not" {
				continue
			}
			terms = append(terms, w)
		}
	}
	return terms
}

// ring is a fixed-capacity FIFO that overwrites its oldest item.
type ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// newest returns up to n items, newest first.
func (r *ring[T]) newest(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	n = min(n, r.size)
	out := make([]T, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.items[(r.head-i+len(r.items))%len(r.items)])
	}
	return out
}
