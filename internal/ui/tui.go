package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws a live panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. The output should be a terminal.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.ProjectDir, GetStyles(cfg.NoColor))
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background until Complete or Stop.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update records the event; the view picks it up on the next tick.
func (r *TUIRenderer) Update(e ProgressEvent) {
	r.tracker.Update(e)
}

// Complete switches the view to the summary and ends the program.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop quits the program, waiting briefly for it to restore the terminal.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type completeMsg CompletionStats
type tickMsg time.Time

type indexingModel struct {
	tracker    *ProgressTracker
	width      int
	quitting   bool
	complete   bool
	stats      CompletionStats
	spinner    spinner.Model
	bar        progress.Model
	styles     Styles
	projectDir string
}

func newIndexingModel(tracker *ProgressTracker, projectDir string, styles Styles) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	bar := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &indexingModel{
		tracker:    tracker,
		width:      80,
		spinner:    s,
		bar:        bar,
		styles:     styles,
		projectDir: projectDir,
	}
}

func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	snap := m.tracker.Snapshot()
	sections := []string{
		m.renderStages(snap.Stage),
		m.renderProgress(snap),
		m.renderRate(),
	}
	if snap.Message != "" {
		sections = append(sections, m.styles.Dim.Render(snap.Message))
	}

	title := "ftsindex"
	if m.projectDir != "" {
		title += " " + m.projectDir
	}
	width := max(m.width-4, 40)
	return m.styles.Header.Render(title) + "\n" +
		m.styles.Panel.Width(width).Render(strings.Join(sections, "\n")) + "\n" +
		m.styles.Dim.Render("q quit") + "\n"
}

func (m *indexingModel) renderStages(current Stage) string {
	stages := []Stage{StageCrawling, StageIndexing, StageCommitting}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		var icon string
		var style lipgloss.Style
		switch {
		case s < current:
			icon, style = "●", m.styles.Success
		case s == current:
			icon, style = m.spinner.View(), m.styles.Active
		default:
			icon, style = "○", m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *indexingModel) renderProgress(snap ProgressEvent) string {
	if snap.Submitted == 0 {
		return m.spinner.View() + " " + m.styles.Dim.Render("waiting for files...")
	}
	fraction := m.tracker.Fraction()
	line := fmt.Sprintf("%s  %s", m.bar.ViewAs(fraction),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", fraction*100)))
	counts := fmt.Sprintf("%d / %d files", snap.Completed, snap.Submitted)
	if snap.Failed > 0 {
		counts += "  " + m.styles.Error.Render(fmt.Sprintf("%d failed", snap.Failed))
	}
	if snap.Queued > 0 {
		counts += "  " + m.styles.Label.Render(fmt.Sprintf("%d queued", snap.Queued))
	}
	return line + "\n" + m.styles.Label.Render(counts)
}

func (m *indexingModel) renderRate() string {
	parts := []string{fmt.Sprintf("%.0f files/s", m.tracker.Speed())}
	if eta := m.tracker.ETA(); eta > 0 {
		parts = append(parts, "ETA "+FormatDuration(eta))
	}
	parts = append(parts, "elapsed "+FormatDuration(m.tracker.Elapsed()))
	return m.styles.Label.Render(strings.Join(parts, "  •  "))
}

func (m *indexingModel) renderComplete() string {
	s := m.stats
	var b strings.Builder
	b.WriteString(m.styles.Success.Render(fmt.Sprintf("✓ Indexed %d of %d files in %s",
		s.Indexed, s.Submitted, FormatDuration(s.Duration))))
	b.WriteString("\n")
	b.WriteString(m.styles.Label.Render(fmt.Sprintf("  unchanged %d  excluded %d  documents %d",
		s.Unchanged, s.Excluded, s.Documents)))
	b.WriteString("\n")
	if s.Failed > 0 {
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("  %d files failed, see the log", s.Failed)))
		b.WriteString("\n")
	}
	return b.String()
}
