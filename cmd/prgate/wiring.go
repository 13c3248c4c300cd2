package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prgate/prgate/internal/config"
	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/gateway"
	"github.com/prgate/prgate/internal/github"
	"github.com/prgate/prgate/internal/jira"
	"github.com/prgate/prgate/internal/llm"
	"github.com/prgate/prgate/internal/notify"
	"github.com/prgate/prgate/internal/risk"
	"github.com/prgate/prgate/internal/telemetry"
	"github.com/prgate/prgate/internal/webhook"
	"github.com/prgate/prgate/internal/workflow"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// newGitHubClient builds the hosting client. GITHUB_TOKEN fills in a
// missing github.token.
func newGitHubClient(cfg config.Config) *github.Client {
	token := cfg.GitHub.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	c := github.NewClient(token)
	if cfg.GitHub.APIURL != "" {
		c = c.WithBaseURL(cfg.GitHub.APIURL)
	}
	if cfg.GitHub.TimeoutSecs > 0 {
		c = c.WithHTTPClient(&http.Client{Timeout: seconds(cfg.GitHub.TimeoutSecs)})
	}
	if cfg.GitHub.MergeMethod != "" {
		c.MergeMethod = cfg.GitHub.MergeMethod
	}
	if cfg.GitHub.StatusContext != "" {
		c.StatusContext = cfg.GitHub.StatusContext
	}
	c.MergeWait = seconds(cfg.GitHub.MergeWaitSecs)
	return c
}

// newAnalyzer loads the knowledge base and connects the AI backend. A
// missing knowledge directory falls back to the built-in defaults.
func newAnalyzer(cfg config.Config, logger *slog.Logger) (*risk.Analyzer, error) {
	kb, err := risk.LoadKnowledgeBase(cfg.Analysis.KnowledgeDir)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	backend, err := llm.NewAnthropicBackend(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: int64(cfg.LLM.MaxTokens),
	})
	if err != nil {
		return nil, err
	}
	return risk.NewAnalyzer(backend, kb, risk.Config{
		DiffLimit: cfg.Analysis.DiffLimit,
		Timeout:   seconds(cfg.LLM.TimeoutSecs),
	}, logger), nil
}

func newTicketer(cfg config.Config, logger *slog.Logger) *jira.Ticketer {
	var client *jira.Client
	if cfg.Jira.URL != "" {
		client = jira.NewClient(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.APIToken)
		if cfg.Jira.TimeoutSecs > 0 {
			client.HTTPClient = &http.Client{Timeout: seconds(cfg.Jira.TimeoutSecs)}
		}
	}
	return jira.NewTicketer(client, cfg.Jira.Project, cfg.Jira.IssueType, logger)
}

func newNotifier(cfg config.Config, logger *slog.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(notify.Config{
		Channels:   cfg.Notify.Channels,
		Recipients: cfg.Notify.Recipients,
		WebhookURL: cfg.Notify.WebhookURL,
		SMTP: notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		},
	}, logger)
}

func newLinks(cfg config.Config) webhook.Links {
	return webhook.Links{
		BaseURL: cfg.Server.PublicURL,
		Secret:  []byte(cfg.Server.LinkSecret),
		TTL:     time.Duration(cfg.Server.LinkTTLHours) * time.Hour,
	}
}

// app is the fully wired server.
type app struct {
	gateway *gateway.Gateway
	server  *webhook.Server
}

// buildApp wires every collaborator from cfg.
func buildApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	gh := newGitHubClient(cfg)
	if gh.Token == "" {
		return nil, errors.New("github token required: set github.token or GITHUB_TOKEN")
	}
	host := executor.Instrument(gh)

	analyzer, err := newAnalyzer(cfg, logger)
	if err != nil {
		return nil, err
	}
	links := newLinks(cfg)

	ctrl := workflow.New(workflow.Deps{
		Host:     host,
		Tickets:  newTicketer(cfg, logger),
		Notifier: newNotifier(cfg, logger),
		Assessor: analyzer,
		Store:    newThreadStore(cfg, host),
		Links:    links,
		Logger:   logger,
	}, workflow.Config{
		ProbePrefix:   cfg.Resume.ProbePrefix,
		ProbeCount:    cfg.Resume.ProbeCount,
		FreshPrefix:   cfg.Resume.FreshPrefix,
		TicketProject: cfg.Jira.Project,
	})

	gw := gateway.New(host, ctrl, gateway.Config{
		Mention:           cfg.Agent.Mention,
		StrictDecisions:   cfg.Agent.StrictDecisions,
		BotLogin:          cfg.Agent.BotLogin,
		DeleteConcurrency: cfg.Agent.BulkConcurrency,
		DisableAutoPR:     !cfg.Agent.AutoPR,
	}, logger)

	server := webhook.NewServer(webhook.ServerConfig{
		Gateway:      gw,
		Secret:       []byte(cfg.Server.WebhookSecret),
		Links:        links,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
	})
	return &app{gateway: gw, server: server}, nil
}

// newThreadStore recovers paused context from the PR thread, trusting only
// the agent's own comments when its login is configured.
func newThreadStore(cfg config.Config, thread continuation.Thread) *continuation.ThreadStore {
	return continuation.NewThreadStore(thread, continuation.Options{Author: cfg.Agent.BotLogin})
}

func telemetryConfig(cfg config.Config) telemetry.Config {
	return telemetry.Config{
		Enabled:             cfg.Telemetry.Enabled,
		Stdout:              cfg.Telemetry.Stdout,
		OTLPMetricsEndpoint: cfg.Telemetry.OTLPMetricsEndpoint,
		MetricInterval:      seconds(cfg.Telemetry.MetricIntervalSecs),
	}
}
