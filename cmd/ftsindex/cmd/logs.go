package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/logging"
	"github.com/Aman-CERP/ftsindex/internal/ui"
)

func newLogsCmd() *cobra.Command {
	var (
		file    string
		lines   int
		follow  bool
		level   string
		pattern string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dataDir := ""
			if p, err := loadProject(); err == nil {
				dataDir = p.dataDir()
			}
			path, err := logging.FindLogFile(file, dataDir)
			if err != nil {
				return err
			}

			vc := logging.ViewerConfig{
				Level:   level,
				NoColor: noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()),
			}
			if pattern != "" {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("invalid pattern: %w", err)
				}
				vc.Pattern = re
			}
			viewer := logging.NewViewer(vc, cmd.OutOrStdout())

			entries, err := viewer.Tail(path, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)
			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ch := make(chan logging.Entry, 64)
			errc := make(chan error, 1)
			go func() {
				errc <- viewer.Follow(ctx, path, ch)
				close(ch)
			}()
			for e := range ch {
				viewer.Print([]logging.Entry{e})
			}
			if err := <-errc; err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Log file (default: the project's log)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new entries")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVarP(&pattern, "grep", "g", "", "Only entries matching this regular expression")
	return cmd
}
