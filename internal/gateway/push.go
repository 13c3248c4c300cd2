package gateway

import (
	"context"
	"fmt"

	"github.com/prgate/prgate/internal/event"
)

// handlePush opens a pull request for a pushed branch that has none. The
// resulting "opened" event starts the analysis.
func (g *Gateway) handlePush(ctx context.Context, ev event.Event) Outcome {
	branch := ev.Branch()
	switch {
	case g.cfg.DisableAutoPR:
		return ignored("auto-PR disabled")
	case branch == "":
		return ignored("push to non-branch ref %s", ev.Ref)
	case ev.BranchDeleted():
		return ignored("branch %s deleted", branch)
	case isProtected(branch):
		return ignored("push to %s", branch)
	}

	number, found, err := g.host.FindOpenPullRequest(ctx, ev.Repo, branch)
	if err != nil {
		g.logger.Warn("open pull request lookup failed", "repo", ev.Repo, "branch", branch, "error", err)
		return ignored("pull request lookup failed: %v", err)
	}
	if found {
		return ignored("branch %s already has PR #%d", branch, number)
	}

	base := g.baseBranch(ctx, ev.Repo)
	if base == branch {
		return ignored("push to default branch %s", branch)
	}
	number, err = g.host.CreatePullRequest(ctx, ev.Repo,
		"Auto-PR: "+branch, branch, base,
		fmt.Sprintf("This is an automatically generated pull request for branch `%s`.", branch))
	if err != nil {
		g.logger.Warn("auto-PR creation failed", "repo", ev.Repo, "branch", branch, "error", err)
		return ignored("auto-PR creation failed: %v", err)
	}
	g.logger.Info("auto-PR created", "repo", ev.Repo, "branch", branch, "base", base, "pr", number)
	return Outcome{Route: RouteAutoPR}
}
