// Package notify delivers approval requests for paused pull requests.
// Requests are dispatched to every configured channel (log, email, webhook).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prgate/prgate/internal/executor"
)

// Channel names accepted in notify.channels.
const (
	ChannelLog     = "log"
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// ApprovalPayload is the JSON body posted to the webhook channel.
type ApprovalPayload struct {
	Type       string `json:"type"` // "approval_request"
	TicketID   string `json:"ticket_id"`
	Repo       string `json:"repo"`
	PRNumber   int    `json:"pr_number"`
	Title      string `json:"title,omitempty"`
	RiskLevel  string `json:"risk_level"`
	Request    string `json:"request"`
	Analysis   string `json:"analysis"`
	Token      string `json:"token"`
	ApproveURL string `json:"approve_url,omitempty"`
	RejectURL  string `json:"reject_url,omitempty"`
}

// DispatchResult records the outcome of a notification dispatch.
type DispatchResult struct {
	Channel string `json:"channel"` // e.g., "email:ops@acme.io", "webhook"
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Config selects channels and their destinations.
type Config struct {
	Channels   []string
	Recipients []string
	WebhookURL string
	SMTP       SMTPConfig
}

// Dispatcher sends approval requests to configured channels.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	httpClient *http.Client
	mailer     *Mailer
}

// NewDispatcher creates a new notification dispatcher. With no channels
// configured it falls back to logging.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{ChannelLog}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config:     cfg,
		logger:     logger.With("component", "notify"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		mailer:     NewMailer(cfg.SMTP),
	}
}

// WithHTTPClient replaces the webhook HTTP client.
func (d *Dispatcher) WithHTTPClient(c *http.Client) *Dispatcher {
	d.httpClient = c
	return d
}

// WithMailer replaces the email sender.
func (d *Dispatcher) WithMailer(m *Mailer) *Dispatcher {
	d.mailer = m
	return d
}

// BuildPayload creates the webhook payload for an approval.
func BuildPayload(a executor.Approval) ApprovalPayload {
	return ApprovalPayload{
		Type:       "approval_request",
		TicketID:   a.TicketID,
		Repo:       a.Repo,
		PRNumber:   a.PRNumber,
		Title:      a.Title,
		RiskLevel:  a.Level,
		Request:    a.Request,
		Analysis:   a.Analysis,
		Token:      a.Token,
		ApproveURL: a.ApproveURL,
		RejectURL:  a.RejectURL,
	}
}

// SendApproval dispatches to every channel. It fails only when no channel
// succeeded.
func (d *Dispatcher) SendApproval(ctx context.Context, a executor.Approval) error {
	results := d.Dispatch(ctx, a)
	var errs []error
	for _, r := range results {
		if r.Success {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %s", r.Channel, r.Error))
	}
	return fmt.Errorf("approval notification failed: %w", errors.Join(errs...))
}

// Dispatch sends the approval to all configured channels and reports each outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, a executor.Approval) []DispatchResult {
	var results []DispatchResult
	for _, channel := range d.config.Channels {
		results = append(results, d.dispatchToChannel(ctx, a, channel)...)
	}
	for _, r := range results {
		if !r.Success {
			d.logger.Warn("notification channel failed", "channel", r.Channel, "ticket", a.TicketID, "error", r.Error)
		}
	}
	return results
}

// dispatchToChannel sends a notification to a specific channel.
func (d *Dispatcher) dispatchToChannel(ctx context.Context, a executor.Approval, channel string) []DispatchResult {
	switch channel {
	case ChannelLog:
		d.logNotification(a)
		return []DispatchResult{{Channel: channel, Success: true}}

	case ChannelEmail:
		if len(d.config.Recipients) == 0 {
			return []DispatchResult{{Channel: channel, Error: "no recipients configured"}}
		}
		var results []DispatchResult
		for _, to := range d.config.Recipients {
			result := DispatchResult{Channel: "email:" + to}
			if err := d.mailer.Send(ctx, to, a); err != nil {
				result.Error = err.Error()
			} else {
				result.Success = true
			}
			results = append(results, result)
		}
		return results

	case ChannelWebhook:
		result := DispatchResult{Channel: channel}
		if d.config.WebhookURL == "" {
			result.Error = "no webhook URL configured"
		} else if err := d.sendWebhook(ctx, BuildPayload(a), d.config.WebhookURL); err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
		}
		return []DispatchResult{result}

	default:
		return []DispatchResult{{Channel: channel, Error: fmt.Sprintf("unknown channel type: %s", channel)}}
	}
}

// logNotification records the approval request in the service log.
func (d *Dispatcher) logNotification(a executor.Approval) {
	d.logger.Info("approval requested",
		"ticket", a.TicketID,
		"repo", a.Repo,
		"pr", a.PRNumber,
		"risk", a.Level,
		"approve_url", a.ApproveURL,
		"reject_url", a.RejectURL,
	)
}

// sendWebhook sends a webhook notification.
func (d *Dispatcher) sendWebhook(ctx context.Context, payload ApprovalPayload, webhookURL string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Prgate-Event", "approval_request")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// truncate shortens a string to the specified length with ellipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

var _ executor.Notifier = (*Dispatcher)(nil)
