// Command prgate is a risk-gated pull request agent: it classifies
// requests in PR comments, asks an AI backend for a risk verdict, and
// executes or pauses for human approval.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prgate/prgate/internal/config"
	"github.com/prgate/prgate/internal/logging"
)

var (
	configPath  string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
)

// Command groups for organized help output
const (
	GroupServer = "server"
	GroupTools  = "tools"
	GroupSetup  = "setup"
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupServer, Title: "Server:"},
		&cobra.Group{ID: GroupTools, Title: "Inspection Tools:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup & Configuration:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./prgate.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	// Add --version flag to root command (same behavior as version subcommand)
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "prgate",
	Short: "prgate - risk-gated pull request agent",
	Long: `prgate listens for GitHub webhooks, classifies @pr-agent requests, runs an
AI risk analysis and either executes the change or pauses it for human approval.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion(cmd.OutOrStdout())
			return nil
		}
		return cmd.Help()
	},
}

// loadConfig resolves the effective configuration. Flag overrides use
// dotted config keys.
func loadConfig(overrides map[string]any) (config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigPath:    configPath,
		FlagOverrides: overrides,
	})
}

// newLogger builds the process logger from config and verbosity flags.
func newLogger(cfg config.Config) *slog.Logger {
	opts := logging.DefaultOptions()
	opts.Level = cfg.Log.Level
	opts.Format = cfg.Log.Format
	opts.ReportCaller = cfg.Log.ReportCaller
	switch {
	case verboseFlag:
		opts.Level = "debug"
	case quietFlag:
		opts.Level = "error"
	}
	return logging.New(opts)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// outputJSON writes v as pretty-printed JSON.
func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			_ = outputJSON(os.Stderr, map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
