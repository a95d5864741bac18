package ui

import (
	"fmt"
	"sync"
	"time"
)

// speedAlpha weights the newest sample in the files/second average.
const speedAlpha = 0.3

// ProgressTracker derives rate and ETA from a stream of ProgressEvents.
type ProgressTracker struct {
	mu sync.Mutex

	stage     Stage
	submitted int
	completed int
	failed    int
	queued    int
	message   string

	start      time.Time
	lastSample time.Time
	lastDone   int
	speed      float64

	now func() time.Time
}

// NewProgressTracker starts a tracker at StageCrawling.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{start: t, lastSample: t, now: now}
}

// Update records an event.
func (p *ProgressTracker) Update(e ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = e.Stage
	p.submitted = e.Submitted
	p.completed = e.Completed
	p.failed = e.Failed
	p.queued = e.Queued
	p.message = e.Message

	now := p.now()
	elapsed := now.Sub(p.lastSample).Seconds()
	if elapsed < 0.1 {
		return
	}
	sample := float64(e.Completed-p.lastDone) / elapsed
	if sample < 0 {
		sample = 0
	}
	if p.speed == 0 {
		p.speed = sample
	} else {
		p.speed = speedAlpha*sample + (1-speedAlpha)*p.speed
	}
	p.lastSample = now
	p.lastDone = e.Completed
}

// Snapshot returns the last recorded event.
func (p *ProgressTracker) Snapshot() ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressEvent{
		Stage:     p.stage,
		Submitted: p.submitted,
		Completed: p.completed,
		Failed:    p.failed,
		Queued:    p.queued,
		Message:   p.message,
	}
}

// Fraction is completed over submitted in [0,1].
func (p *ProgressTracker) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitted == 0 {
		return 0
	}
	f := float64(p.completed) / float64(p.submitted)
	return min(f, 1)
}

// Speed returns files completed per second.
func (p *ProgressTracker) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// ETA estimates the time to finish the submitted files. Zero means unknown.
// Crawling keeps submitting, so the estimate only holds once it ends.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.submitted - p.completed
	if p.speed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / p.speed * float64(time.Second))
}

// Elapsed returns the time since the tracker started.
func (p *ProgressTracker) Elapsed() time.Duration {
	return p.now().Sub(p.start)
}

// FormatDuration renders d as 1h02m, 3m05s or 4.2s.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d/time.Hour), int((d%time.Hour)/time.Minute))
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d/time.Minute), int((d%time.Minute)/time.Second))
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
