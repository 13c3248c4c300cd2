package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/risk"
)

// Decision is a human verdict on a paused pull request.
type Decision struct {
	Repo     string
	PRNumber int
	// Message is the decision text. It may carry "Params: <token>" or
	// "Context: <request>".
	Message string
	// Actor is the identity asserted by the event source.
	Actor string
}

// recovered is the context a resume works from.
type recovered struct {
	rec     continuation.Record
	source  continuation.Source
	settled *continuation.Comment
	pr      *executor.PullRequest
}

// recover fetches the PR and reconstructs the paused context. Neither step
// can fail the resume: a missing PR and a thread miss both degrade.
func (c *Controller) recover(ctx context.Context, d Decision) recovered {
	var out recovered
	title := ""
	if pr, err := c.host.GetPullRequest(ctx, d.Repo, d.PRNumber); err != nil {
		c.logger.Warn("fetch pull request failed on resume", "repo", d.Repo, "pr", d.PRNumber, "error", err)
	} else {
		out.pr = &pr
		title = pr.Title
	}

	rc, err := c.store.Load(ctx, d.Repo, d.PRNumber, d.Message, title)
	if err != nil {
		c.logger.Warn("thread recovery degraded", "repo", d.Repo, "pr", d.PRNumber, "error", err)
	}
	rec := rc.Record
	if rec.Repo != "" && (rec.Repo != d.Repo || rec.PRNumber != d.PRNumber) {
		c.logger.Warn("continuation record names another pull request, using the event's",
			"record_repo", rec.Repo, "record_pr", rec.PRNumber)
	}
	rec.Repo, rec.PRNumber = d.Repo, d.PRNumber
	if rec.CommitSHA == "" && out.pr != nil {
		rec.CommitSHA = out.pr.HeadSHA
	}
	if rec.Kind == "" {
		rec.Kind = continuation.KindFor(rec.Request)
	}

	out.rec = rec
	out.source = rc.Source
	if rc.Source != continuation.SourceInline {
		out.settled = rc.Settled
	}
	c.logger.Info("context recovered", "repo", d.Repo, "pr", d.PRNumber,
		"source", rc.Source, "ticket", rec.TicketID, "kind", rec.Kind, "skipped", rc.Skipped)
	return out
}

// duplicate acknowledges a decision that arrived after the outcome was
// posted.
func (c *Controller) duplicate(ctx context.Context, d Decision, r recovered, decision string, res Result) Result {
	c.comment(ctx, d.Repo, d.PRNumber, duplicateComment(decision))
	res.Duplicate = true
	res.State = Executed
	status := TicketExecuted
	if strings.Contains(r.settled.Body, continuation.RejectedMarker) {
		res.State = Rejected
		status = TicketRejected
	}
	res.Ticket = ticketFromRecord(r.rec, status)
	c.logger.Info("repeated decision ignored", "repo", d.Repo, "pr", d.PRNumber, "decision", decision)
	return res
}

// Approve resumes a paused workflow. Risk-accepted automatic analyses
// reopen and merge the PR; code-change requests are applied to their
// target file.
func (c *Controller) Approve(ctx context.Context, d Decision) (res Result) {
	ctx, span := c.startSpan(ctx, "workflow.approve", d.Repo, d.PRNumber)
	defer func() { endSpan(span, res) }()

	r := c.recover(ctx, d)
	res = Result{Source: r.source, Level: risk.Level(r.rec.RiskLevel)}
	if r.settled != nil {
		return c.duplicate(ctx, d, r, "approved", res)
	}
	res.Ticket = ticketFromRecord(r.rec, TicketApproved)

	c.status(ctx, d.Repo, r.rec.CommitSHA, executor.Success, "Approved by "+d.Actor)

	if r.rec.Kind == continuation.KindRiskAcceptance {
		return c.acceptRisk(ctx, d, r, res)
	}
	return c.execute(ctx, d, r, res)
}

// acceptRisk unblocks a PR whose automatic analysis was gated.
func (c *Controller) acceptRisk(ctx context.Context, d Decision, r recovered, res Result) Result {
	id := r.rec.TicketID
	c.ticketNote(ctx, id, fmt.Sprintf("✅ **Approved by %s:** Risk accepted. PR unblocked.", d.Actor), "approved")

	// Posted before reopening so the reopened event finds it and is skipped.
	c.comment(ctx, d.Repo, d.PRNumber, riskAcceptedComment(d.Actor, id))
	if err := c.host.SetPullRequestState(ctx, d.Repo, d.PRNumber, executor.Open); err != nil {
		c.logger.Warn("reopen pull request failed", "repo", d.Repo, "pr", d.PRNumber, "error", err)
	}

	mr, err := c.host.MergePullRequest(ctx, d.Repo, d.PRNumber, "")
	if err != nil {
		c.logger.Warn("merge after risk acceptance failed", "repo", d.Repo, "pr", d.PRNumber, "error", err)
	}
	c.comment(ctx, d.Repo, d.PRNumber, mergeStatusComment(mr.Merged))

	res.State = Executed
	res.Ticket.Status = TicketExecuted
	c.logger.Info("risk accepted", "repo", d.Repo, "pr", d.PRNumber, "ticket", id, "merged", mr.Merged)
	return res
}

// execute applies an approved code change: resolve the branch and file,
// ask the backend for the new content and write it back against the
// revision that was read.
func (c *Controller) execute(ctx context.Context, d Decision, r recovered, res Result) Result {
	rec := r.rec
	c.logger.Info("executing approved change", "repo", d.Repo, "pr", d.PRNumber, "state", Executing)

	branch, src, err := c.resolveBranch(ctx, rec, r.pr)
	if err != nil {
		return c.fail(ctx, d, res, approvalFailedComment(fmt.Sprintf("Could not resolve a target branch: %v", err)), err.Error())
	}
	res.Branch = branch
	c.logger.Info("target branch resolved", "repo", d.Repo, "branch", branch, "via", src)

	path, ok := TargetFile(rec.Request)
	if !ok {
		return c.fail(ctx, d, res, noTargetComment(rec.Request), "no target file in request")
	}
	res.Path = path

	file, err := c.host.GetFile(ctx, d.Repo, path, branch)
	if err != nil {
		if errors.Is(err, executor.ErrNotFound) {
			reason := fmt.Sprintf("File `%s` not found on branch `%s`", path, branch)
			return c.fail(ctx, d, res, failedComment(reason), reason)
		}
		return c.fail(ctx, d, res, failedComment(fmt.Sprintf("Could not read `%s` on `%s`: %v", path, branch, err)), err.Error())
	}

	updated, err := c.assessor.Transform(ctx, rec.Request, path, file.Content)
	if err != nil {
		return c.fail(ctx, d, res, failedComment(fmt.Sprintf("The AI backend could not produce the change for `%s`: %v", path, err)), err.Error())
	}
	if strings.HasSuffix(file.Content, "\n") && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}

	err = c.host.UpdateFile(ctx, d.Repo, executor.FileUpdate{
		Path:     path,
		Branch:   branch,
		Content:  updated,
		Message:  fmt.Sprintf("%s: %s", rec.TicketID, firstLine(rec.Request)),
		PriorSHA: file.SHA,
	})
	if err != nil {
		if errors.Is(err, executor.ErrConflict) {
			reason := fmt.Sprintf("`%s` changed on `%s` while the change was prepared. Approve again to retry.", path, branch)
			return c.fail(ctx, d, res, failedComment(reason), reason)
		}
		return c.fail(ctx, d, res, failedComment(fmt.Sprintf("Could not write `%s` on `%s`: %v", path, branch, err)), err.Error())
	}

	stat := ComputeDiffStat(file.Content, updated)
	c.ticketNote(ctx, rec.TicketID,
		fmt.Sprintf("✅ **Executed by %s:** Updated `%s` on `%s` (%s).", d.Actor, path, branch, stat),
		"approved", "executed")
	c.comment(ctx, d.Repo, d.PRNumber, executedComment(rec.Request, path, branch, d.Actor, stat))

	res.State = Executed
	res.Ticket.Status = TicketExecuted
	c.logger.Info("approved change executed", "repo", d.Repo, "pr", d.PRNumber,
		"branch", branch, "path", path, "added", stat.Added, "deleted", stat.Deleted)
	return res
}

// fail reports a resume that could not complete. The ticket stays pending
// so a later approval can retry.
func (c *Controller) fail(ctx context.Context, d Decision, res Result, body, reason string) Result {
	c.comment(ctx, d.Repo, d.PRNumber, body)
	res.State = PausedForApproval
	res.Failure = reason
	if res.Ticket != nil {
		res.Ticket.Status = TicketPending
	}
	c.logger.Warn("resume failed", "repo", d.Repo, "pr", d.PRNumber, "reason", reason)
	return res
}

// Reject cancels a paused workflow without touching the repository.
func (c *Controller) Reject(ctx context.Context, d Decision) (res Result) {
	ctx, span := c.startSpan(ctx, "workflow.reject", d.Repo, d.PRNumber)
	defer func() { endSpan(span, res) }()

	r := c.recover(ctx, d)
	res = Result{Source: r.source, Level: risk.Level(r.rec.RiskLevel)}
	if r.settled != nil {
		return c.duplicate(ctx, d, r, "rejected", res)
	}

	id := r.rec.TicketID
	c.ticketNote(ctx, id, fmt.Sprintf("❌ **Rejected by %s:** Request denied by user.", d.Actor), "rejected")
	c.comment(ctx, d.Repo, d.PRNumber, rejectedComment(d.Actor, id))

	res.State = Rejected
	res.Ticket = ticketFromRecord(r.rec, TicketRejected)
	c.logger.Info("request rejected", "repo", d.Repo, "pr", d.PRNumber, "ticket", id, "actor", d.Actor)
	return res
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return risk.Truncate(s, 72)
}
