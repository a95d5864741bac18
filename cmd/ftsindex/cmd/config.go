package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ftsindex/internal/config"
	"github.com/Aman-CERP/ftsindex/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			if asJSON {
				return output.New(cmd.OutOrStdout()).JSON(p.cfg)
			}
			data, err := yaml.Marshal(p.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a config file",
		Long: `Writes .ftsindex.yaml in the project root, or the user config with --user.
An existing file is backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			path := filepath.Join(p.root, ".ftsindex.yaml")
			if existing, ok := config.ProjectConfigPath(p.root); ok {
				path = existing
			}
			if user {
				path = config.GetUserConfigPath()
			}
			if err := p.cfg.WriteYAML(path); err != nil {
				return err
			}
			output.NewWithColor(cmd.OutOrStdout(), !noColor).Successf("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	return cmd
}
