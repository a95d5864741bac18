package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/output"
	"github.com/Aman-CERP/ftsindex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this host can run the indexer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), preflight.Target{
				DataDir:      p.dataDir(),
				IndexPath:    p.cfg.IndexPath(p.root),
				DatabasePath: p.cfg.DatabasePath(p.root),
			})

			if asJSON {
				if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(p.dataDir())
				return fmt.Errorf("system check failed")
			}
			return preflight.MarkPassed(p.dataDir())
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
