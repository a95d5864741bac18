package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the running daemon as MCP tools over stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout that forwards
search, status, enqueue, delete, pause, resume, commit and stats to the
daemon of this project. Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, client, err := runningClient()
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(client)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
