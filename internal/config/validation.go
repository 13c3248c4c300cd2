package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for semantic errors.
func Validate(cfg Config) error {
	var errs []string

	if cfg.Server.Addr == "" && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.max_body_bytes must be > 0")
	}
	if cfg.Server.LinkTTLHours < 0 {
		errs = append(errs, "server.link_ttl_hours cannot be negative")
	}
	if cfg.Server.PublicURL != "" {
		if u, err := url.Parse(cfg.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "server.public_url must be an absolute URL")
		}
	}

	if strings.TrimSpace(cfg.Agent.Mention) == "" {
		errs = append(errs, "agent.mention cannot be empty")
	}
	if cfg.Agent.BulkConcurrency < 1 {
		errs = append(errs, "agent.bulk_concurrency must be >= 1")
	}

	if cfg.GitHub.TimeoutSecs <= 0 {
		errs = append(errs, "github.timeout must be > 0 seconds")
	}
	if !oneOf(cfg.GitHub.MergeMethod, "merge", "squash", "rebase") {
		errs = append(errs, "github.merge_method must be one of merge|squash|rebase")
	}
	if cfg.GitHub.MergeWaitSecs < 0 {
		errs = append(errs, "github.merge_wait_seconds cannot be negative")
	}

	if cfg.Jira.URL != "" && strings.TrimSpace(cfg.Jira.Project) == "" {
		errs = append(errs, "jira.project is required when jira.url is set")
	}

	if cfg.LLM.TimeoutSecs <= 0 {
		errs = append(errs, "llm.timeout must be > 0 seconds")
	}
	if cfg.LLM.MaxTokens <= 0 {
		errs = append(errs, "llm.max_tokens must be > 0")
	}
	if cfg.Analysis.DiffLimit <= 0 {
		errs = append(errs, "analysis.diff_limit must be > 0")
	}

	if cfg.Resume.ProbeCount < 0 {
		errs = append(errs, "resume.probe_count cannot be negative")
	}
	if strings.TrimSpace(cfg.Resume.FreshPrefix) == "" {
		errs = append(errs, "resume.fresh_prefix cannot be empty")
	}

	for _, ch := range cfg.Notify.Channels {
		if !oneOf(ch, "log", "email", "webhook") {
			errs = append(errs, fmt.Sprintf("notify.channels: unknown channel %q", ch))
		}
		if ch == "webhook" && cfg.Notify.WebhookURL == "" {
			errs = append(errs, "notify.webhook_url is required for the webhook channel")
		}
		if ch == "email" && (cfg.SMTP.Host == "" || cfg.SMTP.From == "") {
			errs = append(errs, "smtp.host and smtp.from are required for the email channel")
		}
	}

	if err := validateLogLevel(cfg.Log.Level); err != nil {
		errs = append(errs, "log.level "+err.Error())
	}
	if !oneOf(cfg.Log.Format, "text", "json", "logfmt") {
		errs = append(errs, "log.format must be one of text|json|logfmt")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func oneOf(val string, options ...string) bool {
	for _, o := range options {
		if val == o {
			return true
		}
	}
	return false
}
