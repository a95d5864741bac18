package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/output"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		top    int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search statistics",
		Long: `Shows how many searches ran, their latency distribution, the most
searched terms and recent queries that found nothing. Statistics stay local.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			res, err := queryStats(cmd.Context(), p, top)
			if err != nil {
				return err
			}
			out := output.NewWithColor(cmd.OutOrStdout(), !noColor)
			if asJSON {
				return out.JSON(res)
			}
			printStats(out, res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 10, "Number of top terms")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// queryStats asks the daemon, or reads the database directly when none runs.
func queryStats(ctx context.Context, p *project, top int) (*daemon.StatsResult, error) {
	if client := p.client(); client.IsRunning() {
		return client.Stats(ctx, top)
	}

	db, err := store.OpenSQLite(p.cfg.DatabasePath(p.root))
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	qs, err := telemetry.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	snap, err := telemetry.New(qs, telemetry.Config{}).Snapshot(ctx, top)
	if err != nil {
		return nil, err
	}
	return &daemon.StatsResult{Snapshot: snap, ZeroResultPercent: snap.ZeroResultPercent()}, nil
}

func printStats(out *output.Writer, res *daemon.StatsResult) {
	if res.Queries == 0 {
		out.Status("", "No searches recorded yet")
		return
	}
	out.Statusf("", "Searches: %d (%d with no results, %.1f%%)", res.Queries, res.ZeroResults, res.ZeroResultPercent)

	out.Newline()
	out.Status("", "Latency:")
	for _, b := range telemetry.Buckets {
		out.Statusf("", "  %-6s %d", b, res.Latency[b])
	}

	if len(res.TopTerms) > 0 {
		out.Newline()
		out.Status("", "Top terms:")
		for i, tc := range res.TopTerms {
			out.Statusf("", "  %2d. %s (%d)", i+1, tc.Term, tc.Count)
		}
	}

	if n := min(len(res.RecentZeroResults), 5); n > 0 {
		out.Newline()
		out.Status("", "Recent searches with no results:")
		for _, q := range res.RecentZeroResults[:n] {
			out.Statusf("", "  %q", q)
		}
	}
}
