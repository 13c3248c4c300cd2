package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level config file looked up in the working directory.
const ProjectConfigName = "prgate.toml"

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ProjectDir is used to locate prgate.toml. Defaults to CWD when empty.
	ProjectDir string
	// ConfigPath overrides the project config path if provided.
	ConfigPath string
	// UserConfigPath overrides ~/.config/prgate/config.toml; "-" disables it.
	UserConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
	// Getenv replaces os.Getenv (tests).
	Getenv func(string) string
}

// Load returns the effective configuration after applying precedence:
// defaults < user < project < env < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	projectDir := opts.ProjectDir
	if projectDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectDir = cwd
		}
	}

	userPath := opts.UserConfigPath
	switch userPath {
	case "":
		userPath = UserConfigPath()
	case "-":
		userPath = ""
	}
	if err := mergeConfigFile(v, userPath); err != nil {
		return Config{}, err
	}
	if err := mergeConfigFile(v, projectConfigPath(projectDir, opts.ConfigPath)); err != nil {
		return Config{}, err
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnvOverrides(v, getenv); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(v, opts.FlagOverrides)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults seeds viper with built-in defaults.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.public_url", def.Server.PublicURL)
	v.SetDefault("server.webhook_secret", def.Server.WebhookSecret)
	v.SetDefault("server.link_secret", def.Server.LinkSecret)
	v.SetDefault("server.link_ttl_hours", def.Server.LinkTTLHours)
	v.SetDefault("server.max_body_bytes", def.Server.MaxBodyBytes)
	v.SetDefault("server.async_wait_seconds", def.Server.AsyncWaitSecs)

	v.SetDefault("agent.mention", def.Agent.Mention)
	v.SetDefault("agent.strict_decisions", def.Agent.StrictDecisions)
	v.SetDefault("agent.bot_login", def.Agent.BotLogin)
	v.SetDefault("agent.auto_pr", def.Agent.AutoPR)
	v.SetDefault("agent.bulk_concurrency", def.Agent.BulkConcurrency)

	v.SetDefault("github.token", def.GitHub.Token)
	v.SetDefault("github.api_url", def.GitHub.APIURL)
	v.SetDefault("github.timeout", def.GitHub.TimeoutSecs)
	v.SetDefault("github.merge_method", def.GitHub.MergeMethod)
	v.SetDefault("github.status_context", def.GitHub.StatusContext)
	v.SetDefault("github.merge_wait_seconds", def.GitHub.MergeWaitSecs)

	v.SetDefault("jira.url", def.Jira.URL)
	v.SetDefault("jira.username", def.Jira.Username)
	v.SetDefault("jira.api_token", def.Jira.APIToken)
	v.SetDefault("jira.project", def.Jira.Project)
	v.SetDefault("jira.issue_type", def.Jira.IssueType)
	v.SetDefault("jira.timeout", def.Jira.TimeoutSecs)

	v.SetDefault("llm.api_key", def.LLM.APIKey)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.base_url", def.LLM.BaseURL)
	v.SetDefault("llm.max_tokens", def.LLM.MaxTokens)
	v.SetDefault("llm.timeout", def.LLM.TimeoutSecs)

	v.SetDefault("analysis.knowledge_dir", def.Analysis.KnowledgeDir)
	v.SetDefault("analysis.diff_limit", def.Analysis.DiffLimit)

	v.SetDefault("resume.probe_prefix", def.Resume.ProbePrefix)
	v.SetDefault("resume.probe_count", def.Resume.ProbeCount)
	v.SetDefault("resume.fresh_prefix", def.Resume.FreshPrefix)

	v.SetDefault("notify.channels", def.Notify.Channels)
	v.SetDefault("notify.recipients", def.Notify.Recipients)
	v.SetDefault("notify.webhook_url", def.Notify.WebhookURL)

	v.SetDefault("smtp.host", def.SMTP.Host)
	v.SetDefault("smtp.port", def.SMTP.Port)
	v.SetDefault("smtp.username", def.SMTP.Username)
	v.SetDefault("smtp.password", def.SMTP.Password)
	v.SetDefault("smtp.from", def.SMTP.From)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.report_caller", def.Log.ReportCaller)

	v.SetDefault("telemetry.enabled", def.Telemetry.Enabled)
	v.SetDefault("telemetry.stdout", def.Telemetry.Stdout)
	v.SetDefault("telemetry.otlp_metrics_endpoint", def.Telemetry.OTLPMetricsEndpoint)
	v.SetDefault("telemetry.metric_interval_seconds", def.Telemetry.MetricIntervalSecs)
}

// mergeConfigFile merges the TOML config file if it exists.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides reads PRGATE_* (and conventional secret) env vars.
func applyEnvOverrides(v *viper.Viper, getenv func(string) string) error {
	for _, k := range Keys {
		name, val := k.lookupEnv(getenv)
		if val == "" {
			continue
		}
		parsed, err := parseValueByKind(val, k.kind)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		v.Set(k.Key, parsed)
	}
	return nil
}

// applyFlagOverrides applies CLI overrides as highest-precedence values.
func applyFlagOverrides(v *viper.Viper, overrides map[string]any) {
	for k, val := range overrides {
		v.Set(k, val)
	}
}

// UserConfigPath returns ~/.config/prgate/config.toml, or "" when HOME is unknown.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prgate", "config.toml")
}

func projectConfigPath(projectDir, override string) string {
	if override != "" {
		return override
	}
	if projectDir == "" {
		return ProjectConfigName
	}
	return filepath.Join(projectDir, ProjectConfigName)
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	enc.Indent = "  "
	if err := enc.Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
