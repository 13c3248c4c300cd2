package config

import (
	"fmt"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindStringSlice
)

// Key describes one configuration key that may be set from the environment.
type Key struct {
	Key         string // dot-notated key (e.g., "github.token")
	Description string
	EnvVar      string   // PRGATE_* override
	AltEnv      []string // conventional names consulted when EnvVar is unset
	Secret      bool     // masked by Redacted
	kind        valueKind
	Validate    func(string) error
}

// Keys lists every environment-bindable key.
var Keys = []Key{
	{Key: "server.addr", Description: "Listen address (overrides port when set)", EnvVar: "PRGATE_SERVER_ADDR"},
	{Key: "server.port", Description: "Listen port", EnvVar: "PRGATE_SERVER_PORT", kind: kindInt, Validate: validatePort},
	{Key: "server.public_url", Description: "Externally reachable base URL for approval links", EnvVar: "PRGATE_PUBLIC_URL"},
	{Key: "server.webhook_secret", Description: "GitHub webhook secret (X-Hub-Signature-256)", EnvVar: "PRGATE_WEBHOOK_SECRET", AltEnv: []string{"GITHUB_WEBHOOK_SECRET"}, Secret: true},
	{Key: "server.link_secret", Description: "HMAC key for approval links", EnvVar: "PRGATE_LINK_SECRET", Secret: true},

	{Key: "agent.mention", Description: "Mention that addresses the agent", EnvVar: "PRGATE_AGENT_MENTION"},
	{Key: "agent.strict_decisions", Description: "Require approved/rejected as a whole word at the start or end", EnvVar: "PRGATE_STRICT_DECISIONS", kind: kindBool, Validate: validateBool},
	{Key: "agent.bot_login", Description: "Login whose analysis comments are trusted during recovery", EnvVar: "PRGATE_BOT_LOGIN"},
	{Key: "agent.auto_pr", Description: "Open a PR for pushes to non-default branches", EnvVar: "PRGATE_AUTO_PR", kind: kindBool, Validate: validateBool},

	{Key: "github.token", Description: "GitHub API token", EnvVar: "PRGATE_GITHUB_TOKEN", AltEnv: []string{"GITHUB_TOKEN"}, Secret: true},
	{Key: "github.api_url", Description: "GitHub API base URL", EnvVar: "PRGATE_GITHUB_API_URL"},
	{Key: "github.merge_method", Description: "Merge method (merge, squash, rebase)", EnvVar: "PRGATE_MERGE_METHOD", Validate: validateMergeMethod},

	{Key: "jira.url", Description: "Jira base URL (empty disables Jira)", EnvVar: "PRGATE_JIRA_URL", AltEnv: []string{"JIRA_URL"}},
	{Key: "jira.username", Description: "Jira username", EnvVar: "PRGATE_JIRA_USERNAME", AltEnv: []string{"JIRA_USERNAME"}},
	{Key: "jira.api_token", Description: "Jira API token", EnvVar: "PRGATE_JIRA_API_TOKEN", AltEnv: []string{"JIRA_API_TOKEN"}, Secret: true},
	{Key: "jira.project", Description: "Jira project key", EnvVar: "PRGATE_JIRA_PROJECT"},

	{Key: "llm.api_key", Description: "Anthropic API key", EnvVar: "PRGATE_LLM_API_KEY", AltEnv: []string{"ANTHROPIC_API_KEY"}, Secret: true},
	{Key: "llm.model", Description: "Model used for analysis and transforms", EnvVar: "PRGATE_LLM_MODEL"},
	{Key: "llm.timeout", Description: "Backend call timeout in seconds", EnvVar: "PRGATE_LLM_TIMEOUT", kind: kindInt},

	{Key: "analysis.knowledge_dir", Description: "Directory holding reference material", EnvVar: "PRGATE_KNOWLEDGE_DIR"},

	{Key: "notify.channels", Description: "Comma-separated channels (log, email, webhook)", EnvVar: "PRGATE_NOTIFY_CHANNELS", kind: kindStringSlice},
	{Key: "notify.recipients", Description: "Comma-separated approval email recipients", EnvVar: "PRGATE_NOTIFY_RECIPIENTS", kind: kindStringSlice},
	{Key: "notify.webhook_url", Description: "JSON webhook for approval notifications", EnvVar: "PRGATE_NOTIFY_WEBHOOK_URL"},

	{Key: "smtp.host", Description: "SMTP relay host", EnvVar: "PRGATE_SMTP_HOST"},
	{Key: "smtp.port", Description: "SMTP relay port", EnvVar: "PRGATE_SMTP_PORT", kind: kindInt, Validate: validatePort},
	{Key: "smtp.username", Description: "SMTP username", EnvVar: "PRGATE_SMTP_USERNAME"},
	{Key: "smtp.password", Description: "SMTP password", EnvVar: "PRGATE_SMTP_PASSWORD", Secret: true},
	{Key: "smtp.from", Description: "Sender address", EnvVar: "PRGATE_SMTP_FROM"},

	{Key: "log.level", Description: "Log level (debug, info, warn, error)", EnvVar: "PRGATE_LOG_LEVEL", Validate: validateLogLevel},
	{Key: "log.format", Description: "Log format (text, json, logfmt)", EnvVar: "PRGATE_LOG_FORMAT"},

	{Key: "telemetry.enabled", Description: "Enable OpenTelemetry", EnvVar: "PRGATE_TELEMETRY_ENABLED", kind: kindBool, Validate: validateBool},
	{Key: "telemetry.stdout", Description: "Write spans and metrics to stderr", EnvVar: "PRGATE_TELEMETRY_STDOUT", kind: kindBool, Validate: validateBool},
	{Key: "telemetry.otlp_metrics_endpoint", Description: "OTLP/HTTP metrics endpoint", EnvVar: "PRGATE_OTLP_METRICS_ENDPOINT"},
}

var keyMap map[string]*Key

func init() {
	keyMap = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyMap[Keys[i].Key] = &Keys[i]
	}
}

// LookupKey returns the Key definition, or nil if key is not env-bindable.
func LookupKey(key string) *Key {
	return keyMap[key]
}

// ValidateKey checks whether key is known and value is acceptable for it.
func ValidateKey(key, value string) error {
	k := keyMap[key]
	if k == nil {
		known := make([]string, 0, len(Keys))
		for _, k := range Keys {
			known = append(known, k.Key)
		}
		return fmt.Errorf("unknown key %q; valid keys: %s", key, strings.Join(known, ", "))
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

// KeyEnvMap returns a mapping from key to its PRGATE_* environment variable.
func KeyEnvMap() map[string]string {
	m := make(map[string]string, len(Keys))
	for _, k := range Keys {
		if k.EnvVar != "" {
			m[k.Key] = k.EnvVar
		}
	}
	return m
}

// lookupEnv returns the first non-empty value among EnvVar and AltEnv.
func (k Key) lookupEnv(getenv func(string) string) (string, string) {
	for _, name := range append([]string{k.EnvVar}, k.AltEnv...) {
		if name == "" {
			continue
		}
		if v := getenv(name); v != "" {
			return name, v
		}
	}
	return "", ""
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	switch kind {
	case kindString:
		return raw, nil
	case kindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean: %w", err)
		}
		return v, nil
	case kindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer: %w", err)
		}
		return v, nil
	case kindStringSlice:
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported value kind")
	}
}

// Validation helpers

func validatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error; got %q", value)
	}
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "t", "f":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}

func validateMergeMethod(value string) error {
	if !oneOf(value, "merge", "squash", "rebase") {
		return fmt.Errorf("must be one of: merge, squash, rebase; got %q", value)
	}
	return nil
}
