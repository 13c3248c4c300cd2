// Package config implements hierarchical configuration for prgate.
// Precedence: defaults < user (~/.config/prgate/config.toml) < project (./prgate.toml) < env (PRGATE_*) < flags.
package config

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Agent     AgentConfig     `toml:"agent" mapstructure:"agent"`
	GitHub    GitHubConfig    `toml:"github" mapstructure:"github"`
	Jira      JiraConfig      `toml:"jira" mapstructure:"jira"`
	LLM       LLMConfig       `toml:"llm" mapstructure:"llm"`
	Analysis  AnalysisConfig  `toml:"analysis" mapstructure:"analysis"`
	Resume    ResumeConfig    `toml:"resume" mapstructure:"resume"`
	Notify    NotifyConfig    `toml:"notify" mapstructure:"notify"`
	SMTP      SMTPConfig      `toml:"smtp" mapstructure:"smtp"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `toml:"telemetry" mapstructure:"telemetry"`
}

// ServerConfig holds the webhook listener settings.
type ServerConfig struct {
	Addr          string `toml:"addr" mapstructure:"addr"`
	Port          int    `toml:"port" mapstructure:"port"`
	PublicURL     string `toml:"public_url" mapstructure:"public_url"` // base of approval links
	WebhookSecret string `toml:"webhook_secret" mapstructure:"webhook_secret"`
	LinkSecret    string `toml:"link_secret" mapstructure:"link_secret"` // signs approval links
	LinkTTLHours  int    `toml:"link_ttl_hours" mapstructure:"link_ttl_hours"`
	MaxBodyBytes  int64  `toml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AsyncWaitSecs int    `toml:"async_wait_seconds" mapstructure:"async_wait_seconds"` // drain window on shutdown
}

// AgentConfig holds command-surface knobs.
type AgentConfig struct {
	Mention         string `toml:"mention" mapstructure:"mention"`
	StrictDecisions bool   `toml:"strict_decisions" mapstructure:"strict_decisions"`
	BotLogin        string `toml:"bot_login" mapstructure:"bot_login"` // only this author's analysis comments are trusted
	AutoPR          bool   `toml:"auto_pr" mapstructure:"auto_pr"`
	BulkConcurrency int    `toml:"bulk_concurrency" mapstructure:"bulk_concurrency"`
}

// GitHubConfig holds the hosting API settings.
type GitHubConfig struct {
	Token         string `toml:"token" mapstructure:"token"`
	APIURL        string `toml:"api_url" mapstructure:"api_url"`
	TimeoutSecs   int    `toml:"timeout" mapstructure:"timeout"`
	MergeMethod   string `toml:"merge_method" mapstructure:"merge_method"` // merge | squash | rebase
	StatusContext string `toml:"status_context" mapstructure:"status_context"`
	MergeWaitSecs int    `toml:"merge_wait_seconds" mapstructure:"merge_wait_seconds"`
}

// JiraConfig holds governance ticket settings. An empty URL disables Jira.
type JiraConfig struct {
	URL         string `toml:"url" mapstructure:"url"`
	Username    string `toml:"username" mapstructure:"username"`
	APIToken    string `toml:"api_token" mapstructure:"api_token"`
	Project     string `toml:"project" mapstructure:"project"`
	IssueType   string `toml:"issue_type" mapstructure:"issue_type"`
	TimeoutSecs int    `toml:"timeout" mapstructure:"timeout"`
}

// LLMConfig holds the analysis backend settings.
type LLMConfig struct {
	APIKey      string `toml:"api_key" mapstructure:"api_key"`
	Model       string `toml:"model" mapstructure:"model"`
	BaseURL     string `toml:"base_url" mapstructure:"base_url"`
	MaxTokens   int    `toml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `toml:"timeout" mapstructure:"timeout"`
}

// AnalysisConfig holds risk-analysis inputs.
type AnalysisConfig struct {
	KnowledgeDir string `toml:"knowledge_dir" mapstructure:"knowledge_dir"`
	DiffLimit    int    `toml:"diff_limit" mapstructure:"diff_limit"`
}

// ResumeConfig controls branch re-derivation on approval.
type ResumeConfig struct {
	ProbePrefix string `toml:"probe_prefix" mapstructure:"probe_prefix"`
	ProbeCount  int    `toml:"probe_count" mapstructure:"probe_count"`
	FreshPrefix string `toml:"fresh_prefix" mapstructure:"fresh_prefix"`
}

// NotifyConfig holds approval notification settings.
type NotifyConfig struct {
	Channels   []string `toml:"channels" mapstructure:"channels"` // log | email | webhook
	Recipients []string `toml:"recipients" mapstructure:"recipients"`
	WebhookURL string   `toml:"webhook_url" mapstructure:"webhook_url"`
}

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string `toml:"host" mapstructure:"host"`
	Port     int    `toml:"port" mapstructure:"port"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	From     string `toml:"from" mapstructure:"from"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level        string `toml:"level" mapstructure:"level"`
	Format       string `toml:"format" mapstructure:"format"` // text | json | logfmt
	ReportCaller bool   `toml:"report_caller" mapstructure:"report_caller"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled             bool   `toml:"enabled" mapstructure:"enabled"`
	Stdout              bool   `toml:"stdout" mapstructure:"stdout"`
	OTLPMetricsEndpoint string `toml:"otlp_metrics_endpoint" mapstructure:"otlp_metrics_endpoint"`
	MetricIntervalSecs  int    `toml:"metric_interval_seconds" mapstructure:"metric_interval_seconds"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:          8080,
			PublicURL:     "http://localhost:8080",
			LinkTTLHours:  72,
			MaxBodyBytes:  5 << 20,
			AsyncWaitSecs: 30,
		},
		Agent: AgentConfig{
			Mention:         "@pr-agent",
			AutoPR:          true,
			BulkConcurrency: 4,
		},
		GitHub: GitHubConfig{
			APIURL:        "https://api.github.com",
			TimeoutSecs:   30,
			MergeMethod:   "squash",
			StatusContext: "PR-Agent-Risk-Check",
			MergeWaitSecs: 20,
		},
		Jira: JiraConfig{
			Project:     "SCRUM",
			IssueType:   "Task",
			TimeoutSecs: 30,
		},
		LLM: LLMConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   4096,
			TimeoutSecs: 60,
		},
		Analysis: AnalysisConfig{
			KnowledgeDir: "knowledge",
			DiffLimit:    5000,
		},
		Resume: ResumeConfig{
			ProbePrefix: "test-v",
			ProbeCount:  19,
			FreshPrefix: "approved-change",
		},
		Notify: NotifyConfig{
			Channels: []string{"log"},
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			MetricIntervalSecs: 30,
		},
	}
}

// Redacted returns a copy with secret values masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Server.WebhookSecret = mask(c.Server.WebhookSecret)
	c.Server.LinkSecret = mask(c.Server.LinkSecret)
	c.GitHub.Token = mask(c.GitHub.Token)
	c.Jira.APIToken = mask(c.Jira.APIToken)
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.SMTP.Password = mask(c.SMTP.Password)
	return c
}
