package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/prgate/prgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupSetup,
	Short:   "Manage configuration",
	Long: `Configuration is read from, in increasing precedence: built-in defaults,
~/.config/prgate/config.toml, ./prgate.toml (or --config), PRGATE_* environment
variables and command flags.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		user, _ := cmd.Flags().GetBool("user")
		path := configPath
		switch {
		case user:
			path = config.UserConfigPath()
		case path == "":
			path = config.ProjectConfigName
		}
		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		redacted := cfg.Redacted()
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), redacted)
		}
		enc := toml.NewEncoder(cmd.OutOrStdout())
		enc.Indent = "  "
		return enc.Encode(redacted)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().Bool("user", false, "Write the user config instead of ./prgate.toml")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
