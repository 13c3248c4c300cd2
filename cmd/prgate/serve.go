package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prgate/prgate/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupServer,
	Short:   "Run the webhook server",
	Long: `Run the HTTP server that receives GitHub webhooks and approval links.

Endpoints:
  POST /webhook/github  - push, pull_request and issue_comment deliveries
  GET  /approvals       - approve/reject links from notification emails
  GET  /health          - health check

Configure the app's webhook to send push, pull request and issue comment
events. When server.webhook_secret is set, deliveries must carry a valid
X-Hub-Signature-256 header.

Examples:
  # Start server on default port
  export GITHUB_TOKEN=... ANTHROPIC_API_KEY=...
  prgate serve

  # Start server on custom port
  prgate serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from server.port)")
	serveCmd.Flags().String("addr", "", "Full address to listen on (overrides --port)")
	rootCmd.AddCommand(serveCmd)
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		overrides["server.port"] = port
	}
	if cmd.Flags().Changed("addr") {
		addr, _ := cmd.Flags().GetString("addr")
		overrides["server.addr"] = addr
	}
	return overrides
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveOverrides(cmd))
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	if err := telemetry.Init(ctx, "prgate", Version, telemetryConfig(cfg)); err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(addr) }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	drain, cancel := context.WithTimeout(context.Background(), seconds(cfg.Server.AsyncWaitSecs))
	defer cancel()
	if err := a.server.Shutdown(drain); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	if err := a.gateway.Wait(drain); err != nil {
		logger.Warn("in-flight events abandoned at shutdown", "error", err)
	}
	telemetry.Shutdown(drain)
	logger.Info("stopped")
	return nil
}
