package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/logging"
	"github.com/Aman-CERP/ftsindex/internal/output"
	"github.com/Aman-CERP/ftsindex/internal/preflight"
	"github.com/Aman-CERP/ftsindex/pkg/version"
)

func newServeCmd() *cobra.Command {
	var (
		detach      bool
		metricsAddr string
		skipCheck   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing daemon for the project",
		Long: `Starts the indexing pipeline, crawls and watches the project tree, and
listens on the control socket. Runs in the foreground unless --detach is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				p.cfg.Server.MetricsAddr = metricsAddr
			}
			if detach {
				return startDetached(cmd, p)
			}
			return runServe(cmd.Context(), cmd, p, skipCheck)
		},
	}

	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run in the background")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip first-start system checks")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, p *project, skipCheck bool) error {
	out := output.New(cmd.OutOrStdout())
	dataDir := p.dataDir()

	logCfg := logging.DefaultConfig(dataDir)
	logCfg.Level = p.cfg.Server.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	cleanup, err := logging.Init(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	if !skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
		results := checker.RunAll(ctx, preflight.Target{
			DataDir:      dataDir,
			IndexPath:    p.cfg.IndexPath(p.root),
			DatabasePath: p.cfg.DatabasePath(p.root),
		})
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return fmt.Errorf("system check failed, see 'ftsindex doctor'")
		}
		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Warn("failed to record system check", slog.String("error", err.Error()))
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStack(p, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Close(shutdownCtx); err != nil {
			slog.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	d, err := daemon.New(daemon.Options{
		Config:       p.daemonConfig(),
		Root:         p.root,
		Pipeline:     s.svc,
		Searcher:     s.engine,
		Maintenance:  s.participants.PurgeRunnable(p.cfg.ParticipantRetention()),
		Metrics:      s.metrics.Handler(),
		Queries:      s.queries,
		Participants: s.participants,
	})
	if err != nil {
		return err
	}

	slog.Info("ftsindex starting",
		slog.String("version", version.Short()),
		slog.String("root", p.root),
		slog.String("socket", p.cfg.SocketPath(p.root)),
		slog.String("log_file", logCfg.FilePath))
	out.Statusf("", "Serving %s", p.root)
	out.Statusf("", "Socket: %s", p.cfg.SocketPath(p.root))
	out.Statusf("", "Logs: %s", logCfg.FilePath)

	return d.Run(ctx)
}

// startDetached re-executes serve in a new session and waits for the socket.
func startDetached(cmd *cobra.Command, p *project) error {
	out := output.NewWithColor(cmd.OutOrStdout(), !noColor)
	client := p.client()
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	args := []string{"serve", "--dir", p.root}
	if p.cfg.Server.MetricsAddr != "" {
		args = append(args, "--metrics-addr", p.cfg.Server.MetricsAddr)
	}
	if debugMode {
		args = append(args, "--debug")
	}

	bg := exec.Command(execPath, args...)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon exited during startup: %w", err)
			}
			return fmt.Errorf("daemon exited during startup")
		case <-time.After(100 * time.Millisecond):
		}
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bg.Process.Pid)
			return nil
		}
	}
	return fmt.Errorf("daemon did not start within 10s, see 'ftsindex logs'")
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the project's daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			return stopDaemon(cmd, p.daemonConfig())
		},
	}
}

// stopDaemon sends SIGTERM and escalates to SIGKILL after the grace period.
func stopDaemon(cmd *cobra.Command, cfg daemon.Config) error {
	out := output.NewWithColor(cmd.OutOrStdout(), !noColor)
	pidFile := daemon.NewPIDFile(cfg.PIDPath)
	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	deadline := time.Now().Add(cfg.ShutdownGracePeriod + 5*time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success("Daemon stopped")
			return nil
		}
	}

	out.Warning("Daemon not responding, sending SIGKILL")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	_ = pidFile.Remove()
	out.Success("Daemon killed")
	return nil
}
