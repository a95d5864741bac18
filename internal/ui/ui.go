// Package ui renders indexing progress and pipeline status for the CLI:
// a bubbletea view on terminals and plain lines for pipes and CI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of a one-shot index run.
type Stage int

const (
	// StageCrawling walks the tree and submits files.
	StageCrawling Stage = iota
	// StageIndexing waits for submitted files to be written.
	StageIndexing
	// StageCommitting makes the writes searchable.
	StageCommitting
	// StageComplete is terminal.
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageCrawling:
		return "Crawling"
	case StageIndexing:
		return "Indexing"
	case StageCommitting:
		return "Committing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain output.
func (s Stage) Icon() string {
	switch s {
	case StageCrawling:
		return "CRAWL"
	case StageIndexing:
		return "INDEX"
	case StageCommitting:
		return "COMMIT"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is a snapshot of a run.
type ProgressEvent struct {
	Stage Stage
	// Submitted counts files handed to the pipeline so far.
	Submitted int
	// Completed counts files finished, successfully or not.
	Completed int
	Failed    int
	// Queued is the pipeline backlog across its queues.
	Queued  int
	Message string
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Submitted int
	Indexed   int
	Failed    int
	Unchanged int
	Excluded  int
	Documents uint64
	Duration  time.Duration
}

// Renderer displays progress.
type Renderer interface {
	Start(ctx context.Context) error
	Update(event ProgressEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// ProjectDir is shown in the TUI header.
	ProjectDir string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables colors.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithProjectDir sets the directory shown in the header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) { c.ProjectDir = dir }
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, NoColor: DetectNoColor()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks the TUI for interactive terminals and plain text otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewTUIRenderer(cfg)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a common CI variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
