package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/output"
	"github.com/Aman-CERP/ftsindex/internal/store"
)

func newParticipantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participants",
		Short: "Record or look up participant ids",
		Long: `Participant ids (people or agents seen in a container) are kept in a side
table so searches can recognise them. Rows not seen again for the retention
period are purged by the daemon's daily maintenance.`,
	}
	cmd.AddCommand(newParticipantsAddCmd())
	cmd.AddCommand(newParticipantsCheckCmd())
	return cmd
}

func newParticipantsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <container> <id>...",
		Short: "Record participant ids seen in a container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := runningClient()
			if err != nil {
				return err
			}
			n, err := client.AddParticipants(cmd.Context(), daemon.ParticipantsParams{Container: args[0], IDs: args[1:]})
			if err != nil {
				return err
			}
			output.NewWithColor(cmd.OutOrStdout(), !noColor).Successf("Queued %d participant ids for %s", n, args[0])
			return nil
		},
	}
}

func newParticipantsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Report whether a participant id is known",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			known, err := isParticipant(cmd.Context(), p, args[0])
			if err != nil {
				return err
			}
			out := output.NewWithColor(cmd.OutOrStdout(), !noColor)
			if known {
				out.Successf("%s is a known participant", args[0])
			} else {
				out.Statusf("", "%s is not a known participant", args[0])
			}
			return nil
		},
	}
}

// isParticipant asks the daemon, or reads the database directly when none runs.
func isParticipant(ctx context.Context, p *project, id string) (bool, error) {
	if client := p.client(); client.IsRunning() {
		return client.IsParticipant(ctx, id)
	}

	db, err := store.OpenSQLite(p.cfg.DatabasePath(p.root))
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()
	ps, err := store.NewParticipantStore(db)
	if err != nil {
		return false, err
	}
	return ps.IsParticipant(ctx, id)
}
