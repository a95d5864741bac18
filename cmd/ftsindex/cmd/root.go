// Package cmd provides the ftsindex CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/logging"
	"github.com/Aman-CERP/ftsindex/internal/profiling"
	"github.com/Aman-CERP/ftsindex/pkg/version"
)

// Persistent flags.
var (
	projectDir  string
	debugMode   bool
	noColor     bool
	profileOpts profiling.Options
	profiler    *profiling.Session
	logCleanup  func()
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftsindex",
		Short: "Full-text search indexing for local directories",
		Long: `ftsindex crawls a directory tree, extracts text and code symbols, and keeps
a local full-text index up to date as files change.

Run 'ftsindex serve' in a project to start the indexing daemon, then use
'ftsindex search', 'ftsindex status' and friends to talk to it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("ftsindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log at debug level to stderr")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newCommitCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newParticipantsCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs a stderr logger for client commands;
// serve replaces it with the file logger.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	level := "warn"
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.Init(logging.Config{Level: level})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logCleanup = cleanup

	profiler, err = profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profiler.Stop()
	profiler = nil
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	if err != nil {
		slog.Warn("failed to write profile", slog.String("error", err.Error()))
	}
	return err
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}
