package jira

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/prgate/prgate/internal/executor"
)

// Labels applied to governance tickets.
const (
	LabelPrgate  = "prgate"
	LabelPending = "pending-approval"
)

// Ticketer files governance tickets in a Jira project. When Jira is not
// configured or refuses the create, it hands out a local id so the pause can
// still proceed.
type Ticketer struct {
	Client    *Client
	Project   string
	IssueType string
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewTicketer returns a Ticketer for project. A nil or unconfigured client
// yields local ids only.
func NewTicketer(client *Client, project, issueType string, logger *slog.Logger) *Ticketer {
	if project == "" {
		project = executor.DefaultTicketProject
	}
	if issueType == "" {
		issueType = "Task"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticketer{
		Client:    client,
		Project:   project,
		IssueType: issueType,
		Logger:    logger.With("component", "jira"),
		Now:       time.Now,
	}
}

// CreateTicket creates the governance issue and returns its key.
func (t *Ticketer) CreateTicket(ctx context.Context, f executor.TicketFields) (string, error) {
	if !t.Client.Configured() {
		id := executor.LocalTicketID(t.Project, t.Now())
		t.Logger.Info("jira not configured, using local ticket id", "ticket", id)
		return id, nil
	}

	summary := f.Summary
	if summary == "" {
		summary = fmt.Sprintf("[%s] Audit: %s - PR #%d", f.Level, f.Repo, f.PRNumber)
	}
	labels := []string{LabelPrgate, LabelPending}
	if f.Level != "" {
		labels = append(labels, "risk-"+strings.ToLower(f.Level))
	}
	for _, l := range f.Labels {
		if !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}

	fields := map[string]interface{}{
		"project":     map[string]string{"key": t.Project},
		"summary":     summary,
		"issuetype":   map[string]string{"name": t.IssueType},
		"description": PlainTextToADF(ticketDescription(f)),
		"labels":      labels,
	}

	key, err := t.Client.CreateIssue(ctx, fields)
	if err != nil {
		id := executor.LocalTicketID(t.Project, t.Now())
		t.Logger.Warn("jira create failed, using local ticket id", "ticket", id, "error", err)
		return id, nil
	}
	t.Logger.Info("governance ticket created", "ticket", key, "repo", f.Repo, "pr", f.PRNumber)
	return key, nil
}

// CommentTicket appends text to the ticket.
func (t *Ticketer) CommentTicket(ctx context.Context, id, text string) error {
	if !t.Client.Configured() {
		t.Logger.Debug("jira not configured, skipping comment", "ticket", id)
		return nil
	}
	return t.Client.AddComment(ctx, id, text)
}

// LabelTicket adds labels and clears the pending label.
func (t *Ticketer) LabelTicket(ctx context.Context, id string, labels []string) error {
	if !t.Client.Configured() {
		return nil
	}
	var remove []string
	if !slices.Contains(labels, LabelPending) {
		remove = []string{LabelPending}
	}
	return t.Client.UpdateLabels(ctx, id, labels, remove)
}

func ticketDescription(f executor.TicketFields) string {
	return fmt.Sprintf("Repository: %s\nPull request: #%d\nRisk level: %s\n\n%s", f.Repo, f.PRNumber, f.Level, f.Analysis)
}

var _ executor.Tickets = (*Ticketer)(nil)
