package workflow

import (
	"context"
	"fmt"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/risk"
)

// Trigger starts an analysis.
type Trigger struct {
	Repo     string
	PRNumber int
	// Request is the command text. Automatic triggers use
	// continuation.AutomaticTriggerRequest instead.
	Request string
	// Automatic is set for PR lifecycle events. A LOW verdict then merges.
	Automatic bool
	// HeadSHA is used for commit statuses when the PR cannot be fetched.
	HeadSHA string
	// Branch is the branch a compound request already created.
	Branch string
	Sender string
}

// Analyze runs ANALYZING and routes on the verdict:
// LOW automatic merges, LOW manual posts the report, MEDIUM/HIGH pause
// behind a governance ticket. A backend failure pauses as MEDIUM.
func (c *Controller) Analyze(ctx context.Context, t Trigger) (res Result) {
	ctx, span := c.startSpan(ctx, "workflow.analyze", t.Repo, t.PRNumber)
	defer func() { endSpan(span, res) }()

	request := t.Request
	if t.Automatic {
		request = continuation.AutomaticTriggerRequest
	}
	log := c.logger.With("repo", t.Repo, "pr", t.PRNumber, "automatic", t.Automatic)
	log.Info("analysis started", "state", Analyzing)

	sha, title := t.HeadSHA, ""
	if pr, err := c.host.GetPullRequest(ctx, t.Repo, t.PRNumber); err != nil {
		log.Warn("fetch pull request failed", "error", err)
	} else {
		title = pr.Title
		if sha == "" {
			sha = pr.HeadSHA
		}
	}

	diff, err := c.host.GetDiff(ctx, t.Repo, t.PRNumber)
	if err != nil {
		log.Warn("fetch diff failed, analysing without it", "error", err)
		diff = ""
	}

	as := c.assessor.Assess(ctx, risk.Request{
		Repo:     t.Repo,
		PRNumber: t.PRNumber,
		Diff:     diff,
		Text:     request,
	})
	res = Result{Level: as.Level, Degraded: as.Degraded}

	if !as.Level.Gated() {
		if t.Automatic {
			return c.autoExecute(ctx, t, sha, as, res)
		}
		c.comment(ctx, t.Repo, t.PRNumber, lowManualComment(as.Analysis))
		res.State = Analyzed
		log.Info("analysis posted", "state", res.State, "level", as.Level)
		return res
	}
	return c.pause(ctx, t, request, sha, title, as, res)
}

// autoExecute handles LOW on an automatic trigger: success status, merge,
// and a single comment combining the report and the merge outcome.
func (c *Controller) autoExecute(ctx context.Context, t Trigger, sha string, as risk.Assessment, res Result) Result {
	c.status(ctx, t.Repo, sha, executor.Success, "Low Risk - Safe to Merge")

	mr, err := c.host.MergePullRequest(ctx, t.Repo, t.PRNumber, "")
	if err != nil {
		c.logger.Warn("auto-merge failed", "repo", t.Repo, "pr", t.PRNumber, "error", err)
		mr = executor.MergeResult{Message: err.Error()}
	}
	c.comment(ctx, t.Repo, t.PRNumber, lowAutoComment(as.Analysis, mr.Merged, mr.Message))

	res.State = AutoExecuted
	c.logger.Info("low risk auto-executed", "repo", t.Repo, "pr", t.PRNumber, "merged", mr.Merged)
	return res
}

// pause blocks the PR behind a governance ticket and a continuation token.
func (c *Controller) pause(ctx context.Context, t Trigger, request, sha, title string, as risk.Assessment, res Result) Result {
	level := string(as.Level)
	c.status(ctx, t.Repo, sha, executor.Failure, statusDescription(level))
	if err := c.host.SetPullRequestState(ctx, t.Repo, t.PRNumber, executor.Closed); err != nil {
		c.logger.Warn("close pull request failed", "repo", t.Repo, "pr", t.PRNumber, "error", err)
	}

	ticketID := c.createTicket(ctx, t, level, as.Analysis)

	rec := continuation.NewRecord(request, ticketID, t.Repo, t.PRNumber, sha)
	rec.RiskLevel = level
	rec.Branch = t.Branch
	token, err := continuation.Encode(rec)
	if err != nil {
		c.logger.Error("encode continuation record failed", "ticket", ticketID, "error", err)
	}

	if c.notifier != nil {
		approval := executor.Approval{
			TicketID: ticketID,
			Repo:     t.Repo,
			PRNumber: t.PRNumber,
			Title:    title,
			Level:    level,
			Analysis: as.Analysis,
			Request:  request,
			Token:    token,
		}
		if c.links != nil {
			approval.ApproveURL = c.links.DecisionURL(intent.Approved, t.Repo, t.PRNumber)
			approval.RejectURL = c.links.DecisionURL(intent.Rejected, t.Repo, t.PRNumber)
		}
		if err := c.notifier.SendApproval(ctx, approval); err != nil {
			c.logger.Warn("approval notification failed", "ticket", ticketID, "error", err)
		}
	}

	c.comment(ctx, t.Repo, t.PRNumber, pausedComment(ticketID, as.Analysis, as.Degraded, token))

	res.State = PausedForApproval
	if as.Degraded {
		res.State = DegradedPause
	}
	res.Ticket = &Ticket{
		ID:        ticketID,
		Level:     as.Level,
		Request:   request,
		Repo:      t.Repo,
		PRNumber:  t.PRNumber,
		CommitSHA: sha,
		Status:    TicketPending,
	}
	c.logger.Info("workflow paused", "repo", t.Repo, "pr", t.PRNumber, "state", res.State, "level", level, "ticket", ticketID)
	return res
}

// createTicket files the governance ticket. It always returns an id.
func (c *Controller) createTicket(ctx context.Context, t Trigger, level, analysis string) string {
	if c.tickets != nil {
		id, err := c.tickets.CreateTicket(ctx, executor.TicketFields{
			Repo:     t.Repo,
			PRNumber: t.PRNumber,
			Level:    level,
			Summary:  fmt.Sprintf("[%s] Audit: %s - PR #%d", level, t.Repo, t.PRNumber),
			Analysis: analysis,
		})
		if err == nil && id != "" {
			return id
		}
		c.logger.Warn("ticket creation failed, using local id", "repo", t.Repo, "pr", t.PRNumber, "error", err)
	}
	return executor.LocalTicketID(c.cfg.TicketProject, c.cfg.Now())
}
