package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsindex/internal/daemon"
	"github.com/Aman-CERP/ftsindex/internal/output"
	"github.com/Aman-CERP/ftsindex/internal/resource"
	"github.com/Aman-CERP/ftsindex/internal/store"
	"github.com/Aman-CERP/ftsindex/internal/ui"
)

// errNotRunning is returned by commands that need the daemon.
var errNotRunning = fmt.Errorf("daemon is not running, start it with 'ftsindex serve -d'")

// runningClient returns a client for a running daemon.
func runningClient() (*project, *daemon.Client, error) {
	p, err := loadProject()
	if err != nil {
		return nil, nil, err
	}
	client := p.client()
	if !client.IsRunning() {
		return nil, nil, errNotRunning
	}
	return p, client, nil
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			status := daemon.StatusResult{Root: p.root}
			if client := p.client(); client.IsRunning() {
				res, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				status = *res
			}
			if asJSON {
				return output.New(cmd.OutOrStdout()).JSON(status)
			}
			return ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor()).Render(status)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// simpleCmd builds a command that performs one acknowledged daemon call.
func simpleCmd(use, short, done string, call func(context.Context, *daemon.Client) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, client, err := runningClient()
			if err != nil {
				return err
			}
			if err := call(cmd.Context(), client); err != nil {
				return err
			}
			output.NewWithColor(cmd.OutOrStdout(), !noColor).Success(done)
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return simpleCmd("pause", "Pause indexing and commit", "Indexing paused",
		func(ctx context.Context, c *daemon.Client) error { return c.Pause(ctx) })
}

func newResumeCmd() *cobra.Command {
	return simpleCmd("resume", "Resume indexing", "Indexing resumed",
		func(ctx context.Context, c *daemon.Client) error { return c.Resume(ctx) })
}

func newCommitCmd() *cobra.Command {
	return simpleCmd("commit", "Make pending writes searchable", "Committed",
		func(ctx context.Context, c *daemon.Client) error { return c.Commit(ctx) })
}

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := simpleCmd("clear", "Remove every document and recrawl", "Index cleared",
		func(ctx context.Context, c *daemon.Client) error { return c.Clear(ctx) })
	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !yes {
			return fmt.Errorf("clear removes every document; pass --yes to confirm")
		}
		return run(cmd, args)
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the index")
	return cmd
}

// identifiers turns arguments into pipeline identifiers. Arguments that
// already carry a prefix ("file:docs/a.md") pass through; anything else is a
// path relative to the working directory.
func identifiers(root string, args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		if prefix, _, ok := strings.Cut(arg, ":"); ok && prefix != "" && !strings.ContainsAny(prefix, `/\.`) {
			ids = append(ids, arg)
			continue
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s is outside the project root %s", arg, root)
		}
		ids = append(ids, resource.Identifier(rel))
	}
	return ids, nil
}

func newEnqueueCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "enqueue <path|id>...",
		Short: "Queue files for (re)indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, client, err := runningClient()
			if err != nil {
				return err
			}
			ids, err := identifiers(p.root, args)
			if err != nil {
				return err
			}
			n, err := client.Enqueue(cmd.Context(), daemon.EnqueueParams{IDs: ids, Priority: priority})
			if err != nil {
				return err
			}
			output.NewWithColor(cmd.OutOrStdout(), !noColor).Successf("Queued %d items", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority: alert, item, group, bulk, background, crawl, idle")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var (
		priority  string
		container string
	)
	cmd := &cobra.Command{
		Use:   "delete [path|id]...",
		Short: "Remove documents from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, client, err := runningClient()
			if err != nil {
				return err
			}
			ids, err := identifiers(p.root, args)
			if err != nil {
				return err
			}
			n, err := client.Delete(cmd.Context(), daemon.DeleteParams{IDs: ids, Container: container, Priority: priority})
			if err != nil {
				return err
			}
			output.NewWithColor(cmd.OutOrStdout(), !noColor).Successf("Queued %d deletions", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority name")
	cmd.Flags().StringVar(&container, "container", "", "Delete every document in this container")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search committed documents",
		Long: `Runs a query-string query (e.g. 'fox +title:quick container:docs') against
the daemon, or against the on-disk index when no daemon is running.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			params := daemon.SearchParams{Query: strings.Join(args, " "), Limit: limit}
			if err := params.Validate(); err != nil {
				return err
			}

			hits, err := search(cmd.Context(), p, params)
			if err != nil {
				return err
			}
			out := output.NewWithColor(cmd.OutOrStdout(), !noColor)
			if asJSON {
				return out.JSON(daemon.SearchResult{Hits: hits})
			}
			out.Hits(params.Query, hits)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func search(ctx context.Context, p *project, params daemon.SearchParams) ([]store.Hit, error) {
	if client := p.client(); client.IsRunning() {
		res, err := client.Search(ctx, params)
		if err != nil {
			return nil, err
		}
		return res.Hits, nil
	}

	engine, err := store.OpenBleveEngine(p.cfg.IndexPath(p.root))
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Shutdown(context.Background()) }()
	return engine.Search(ctx, params.Query, params.Limit)
}
