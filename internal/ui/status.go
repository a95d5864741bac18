package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
)

// StatusRenderer prints daemon status as a labelled block.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes the status of a running daemon, or a single line if it is down.
func (r *StatusRenderer) Render(s daemon.StatusResult) error {
	if !s.Running {
		_, err := fmt.Fprintln(r.out, r.styles.Warning.Render("○ daemon not running"))
		return err
	}

	p := s.Pipeline
	state := p.State
	if p.Busy {
		state += ", busy"
	}

	var b strings.Builder
	b.WriteString(r.styles.Success.Render("● daemon running"))
	b.WriteString("\n")
	r.row(&b, "PID", fmt.Sprint(s.PID))
	r.row(&b, "Uptime", s.Uptime)
	r.row(&b, "Root", s.Root)
	r.row(&b, "State", state)
	r.row(&b, "Documents", fmt.Sprint(s.Documents))
	r.row(&b, "Queues", fmt.Sprintf("run %d  item %d  index %d/%d",
		p.RunQueue, p.ItemQueue, p.IndexQueue, p.IndexQueueCapacity))
	r.row(&b, "Uncommitted", fmt.Sprint(p.PendingCommit))

	if len(p.Tasks) > 0 {
		b.WriteString("\n")
		b.WriteString(r.styles.Header.Render("Tasks"))
		b.WriteString("\n")
		for _, t := range p.Tasks {
			mark := r.styles.Active.Render("…")
			if t.Done {
				mark = r.styles.Success.Render("✓")
			}
			line := fmt.Sprintf("%s %s  %d ok  %d failed  %d pending",
				mark, t.Description, t.Succeeded, t.Failed, t.Pending)
			b.WriteString("  " + line + "\n")
		}
	}

	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *StatusRenderer) row(b *strings.Builder, label, value string) {
	b.WriteString(r.styles.Label.Render(lipgloss.NewStyle().Width(12).Render(label)))
	b.WriteString(value)
	b.WriteString("\n")
}
