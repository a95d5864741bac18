package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainInterval throttles repeated progress lines within one stage.
const plainInterval = 2 * time.Second

// PlainRenderer writes one line per stage change and periodic progress lines.
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	cfg       Config
	tracker   *ProgressTracker
	started   bool
	lastStage Stage
	lastLine  time.Time
	now       func() time.Time
}

// NewPlainRenderer creates a plain renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:       cfg.Output,
		cfg:       cfg,
		tracker:   NewProgressTracker(),
		lastStage: -1,
		now:       time.Now,
	}
}

// Start prints the header.
func (r *PlainRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	if r.cfg.ProjectDir != "" {
		fmt.Fprintf(r.out, "Indexing %s\n", r.cfg.ProjectDir)
	}
	return nil
}

// Update prints on stage change, then at most every plainInterval.
func (r *PlainRenderer) Update(e ProgressEvent) {
	r.tracker.Update(e)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e.Stage == r.lastStage && now.Sub(r.lastLine) < plainInterval {
		return
	}
	r.lastStage = e.Stage
	r.lastLine = now

	line := fmt.Sprintf("[%s] %d/%d files", e.Stage.Icon(), e.Completed, e.Submitted)
	if e.Failed > 0 {
		line += fmt.Sprintf(", %d failed", e.Failed)
	}
	if e.Queued > 0 {
		line += fmt.Sprintf(", %d queued", e.Queued)
	}
	if e.Message != "" {
		line += " " + e.Message
	}
	fmt.Fprintln(r.out, line)
}

// Complete prints the summary.
func (r *PlainRenderer) Complete(s CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "[%s] indexed %d of %d files in %s\n",
		StageComplete.Icon(), s.Indexed, s.Submitted, FormatDuration(s.Duration))
	fmt.Fprintf(r.out, "  unchanged: %d  excluded: %d  failed: %d  documents: %d\n",
		s.Unchanged, s.Excluded, s.Failed, s.Documents)
}

// Stop is a no-op.
func (r *PlainRenderer) Stop() error { return nil }
