package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
	"github.com/Aman-CERP/ftsindex/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		rebuild bool
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index the project once and exit",
		Long: `Crawls path (default: the project root), indexes new and changed files,
commits and exits. Refuses to run while the daemon owns the index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, p, path, rebuild, plain)
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear the index before crawling")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output")
	return cmd
}

// taskSubmitter routes crawler submissions into one task so the run can wait for them.
type taskSubmitter struct {
	task *index.Task
	svc  *index.Service
}

func (t taskSubmitter) AddResourceID(id string, pri index.Priority) { t.task.AddResourceID(id, pri) }
func (t taskSubmitter) DeleteResource(id string, pri index.Priority) {
	t.svc.DeleteResource(id, pri)
}
func (t taskSubmitter) IsBusy() bool { return t.svc.IsBusy() }

func runIndex(ctx context.Context, cmd *cobra.Command, p *project, path string, rebuild, plain bool) error {
	if p.client().IsRunning() {
		return fterrors.New(fterrors.ErrCodeDaemonRunning,
			"the daemon is indexing this project; use 'ftsindex enqueue' or stop it first", nil)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStack(p, false)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = s.Close(shutdownCtx)
	}()

	if rebuild {
		if err := s.svc.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}
	if err := s.svc.Start(); err != nil {
		return err
	}

	target := p.root
	if path != "" {
		target = path
	}
	task := s.svc.CreateTask("index " + target)
	c := s.newCrawler(p, taskSubmitter{task: task, svc: s.svc})
	s.crawler = c

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(plain),
		ui.WithNoColor(noColor || ui.DetectNoColor()),
		ui.WithProjectDir(p.root)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	var stage atomic.Int32
	progressDone := make(chan struct{})
	go reportProgress(ctx, renderer, s.svc, task, &stage, progressDone)

	start := time.Now()
	crawlStats, err := c.Crawl(ctx, path)
	if err != nil {
		task.Cancel()
		return fmt.Errorf("crawl failed: %w", err)
	}
	if err := task.SetReady(); err != nil {
		return err
	}

	stage.Store(int32(ui.StageIndexing))
	if err := task.Wait(ctx); err != nil {
		return err
	}

	stage.Store(int32(ui.StageCommitting))
	if err := s.svc.Commit(ctx); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	close(progressDone)

	docs, err := s.engine.DocCount()
	if err != nil && !errors.Is(err, fterrors.ErrIndexClosed) {
		return err
	}
	st := task.Stats()
	renderer.Complete(ui.CompletionStats{
		Submitted: crawlStats.Submitted,
		Indexed:   st.Succeeded,
		Failed:    st.Failed,
		Unchanged: crawlStats.Unchanged,
		Excluded:  crawlStats.Excluded,
		Documents: docs,
		Duration:  time.Since(start),
	})
	if st.Failed > 0 {
		return fmt.Errorf("%d files failed to index", st.Failed)
	}
	return nil
}

// reportProgress feeds task counters to the renderer until done or ctx ends.
func reportProgress(ctx context.Context, r ui.Renderer, svc *index.Service, task *index.Task, stage *atomic.Int32, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := task.Stats()
		status := svc.Status()
		r.Update(ui.ProgressEvent{
			Stage:     ui.Stage(stage.Load()),
			Submitted: st.Succeeded + st.Failed + st.Pending,
			Completed: st.Succeeded + st.Failed,
			Failed:    st.Failed,
			Queued:    status.RunQueue + status.ItemQueue + status.IndexQueue,
		})
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
