package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/config"
	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and modify plugdex configuration settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigGetCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current configuration settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			values := cfg.ToMap()
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Setting", "Value"})
			for _, key := range cfg.Keys() {
				t.AppendRow(table.Row{key, values[key]})
			}
			t.SetStyle(tableStyle())
			t.Render()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nAuth configs (%d):\n", len(cfg.Auth))
			reg, err := cfg.AuthRegistry()
			if err != nil {
				return err
			}
			for _, id := range reg.IDs() {
				a, _ := reg.Lookup(id)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", id, a.Type())
			}
			return nil
		},
	}
}

// Number of arguments expected by the set command.
const setCommandArgs = 2

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a configuration key to a specific value",
		Args:  cobra.ExactArgs(setCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SetValue(args[0], args[1]); err != nil {
				return fmt.Errorf("failed to set configuration value: %w", err)
			}
			if err := cfg.SaveConfig(getConfigPath()); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			logger.Success("Configuration updated", logger.Fields{"key": args[0], "value": args[1]})
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Long:  "Get the value of a specific configuration key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			value, err := cfg.GetValue(args[0])
			if err != nil {
				return fmt.Errorf("failed to get configuration value: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a default configuration file",
		RunE: func(*cobra.Command, []string) error {
			configPath := getConfigPath()
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%w: configuration file already exists at %s (use --force to overwrite)", errutils.ErrInvalidValue, configPath)
			}
			if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
				return fmt.Errorf("failed to save default configuration: %w", err)
			}
			logger.Success("Configuration file created", logger.Fields{"path": configPath})
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	return cmd
}
