package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/workflow"
)

func ignored(format string, args ...any) Outcome {
	return Outcome{Route: RouteIgnored, Reason: fmt.Sprintf(format, args...)}
}

// report posts a fast-path result. Failures are logged.
func (g *Gateway) report(ctx context.Context, cmd intent.Command, body string) {
	if err := g.host.PostComment(ctx, cmd.Repo, cmd.Number, continuation.Sign(body)); err != nil {
		g.logger.Warn("post report failed", "repo", cmd.Repo, "number", cmd.Number, "error", err)
	}
}

func (g *Gateway) baseBranch(ctx context.Context, repo string) string {
	base, err := g.host.DefaultBranch(ctx, repo)
	if err != nil || base == "" {
		g.logger.Warn("default branch lookup failed, using main", "repo", repo, "error", err)
		return "main"
	}
	return base
}

// ensureBranch creates name from the default branch and returns the
// user-facing line describing what happened.
func (g *Gateway) ensureBranch(ctx context.Context, repo, name string) (string, bool) {
	base := g.baseBranch(ctx, repo)
	outcome, err := g.host.CreateBranch(ctx, repo, name, base)
	switch {
	case errors.Is(err, executor.ErrAlreadyExists) || (err == nil && outcome == executor.Exists):
		return fmt.Sprintf("ℹ️ Branch `%s` already exists.", name), true
	case err != nil:
		return fmt.Sprintf("❌ Could not create branch `%s` from `%s`: %v", name, base, err), false
	}
	return fmt.Sprintf("✅ Created branch `%s` from `%s`.", name, base), true
}

func (g *Gateway) createBranch(ctx context.Context, cmd intent.Command, name string) {
	line, _ := g.ensureBranch(ctx, cmd.Repo, name)
	g.report(ctx, cmd, line+"\nNo risk analysis required.")
}

// compound creates the branch first, then runs the governed path with the
// full request so a later approval targets the new branch.
func (g *Gateway) compound(ctx context.Context, cmd intent.Command, name string) workflow.Result {
	line, ok := g.ensureBranch(ctx, cmd.Repo, name)
	g.report(ctx, cmd, line)
	t := workflow.Trigger{
		Repo:     cmd.Repo,
		PRNumber: cmd.Number,
		Request:  cmd.Text,
		Sender:   cmd.Sender,
	}
	if ok {
		t.Branch = name
	}
	g.pending(ctx, cmd.Repo, cmd.Number, "")
	return g.ctrl.Analyze(ctx, t)
}

func deleteLine(name string, outcome executor.Outcome, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("- ❌ `%s`: %v", name, err)
	case outcome == executor.AlreadyGone:
		return fmt.Sprintf("- ⚠️ `%s` was already gone", name)
	}
	return fmt.Sprintf("- ✅ Deleted `%s`", name)
}

func (g *Gateway) deleteBranches(ctx context.Context, cmd intent.Command, names []string) {
	var b strings.Builder
	b.WriteString("**Branch Deletion**\n\n")
	for _, name := range names {
		if isProtected(name) {
			fmt.Fprintf(&b, "- ⛔ `%s` is protected\n", name)
			continue
		}
		outcome, err := g.host.DeleteBranch(ctx, cmd.Repo, name)
		b.WriteString(deleteLine(name, outcome, err))
		b.WriteByte('\n')
	}
	g.report(ctx, cmd, strings.TrimRight(b.String(), "\n"))
}

func isProtected(name string) bool {
	for _, p := range intent.ProtectedBranches {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

type deletion struct {
	name    string
	outcome executor.Outcome
	err     error
}

// bulkDelete removes every branch outside the keep set with bounded
// concurrency. Individual failures are reported, not fatal.
func (g *Gateway) bulkDelete(ctx context.Context, cmd intent.Command, in intent.BulkDelete) {
	branches, err := g.host.ListBranches(ctx, cmd.Repo)
	if err != nil {
		g.report(ctx, cmd, fmt.Sprintf("⚠️ **Bulk deletion failed**: %v", err))
		return
	}

	var targets []deletion
	for _, name := range branches {
		if !in.Keeps(name) {
			targets = append(targets, deletion{name: name})
		}
	}
	kept := "`" + strings.Join(in.Sorted(), "`, `") + "`"
	if len(targets) == 0 {
		g.report(ctx, cmd, fmt.Sprintf("ℹ️ **No branches to delete**\n\nKept: %s", kept))
		return
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.DeleteConcurrency)
	for i := range targets {
		grp.Go(func() error {
			targets[i].outcome, targets[i].err = g.host.DeleteBranch(gctx, cmd.Repo, targets[i].name)
			return nil
		})
	}
	_ = grp.Wait()

	deleted, failed := 0, 0
	var lines strings.Builder
	for _, d := range targets {
		if d.err != nil {
			failed++
		} else {
			deleted++
		}
		lines.WriteString(deleteLine(d.name, d.outcome, d.err))
		lines.WriteByte('\n')
	}
	header := "✅ **Bulk Cleanup Complete**"
	if failed > 0 {
		header = "⚠️ **Bulk Cleanup Finished With Errors**"
	}
	g.report(ctx, cmd, fmt.Sprintf("%s\n\nDeleted %d of %d branches:\n%s\nKept: %s",
		header, deleted, len(targets), lines.String(), kept))
	g.logger.Info("bulk delete finished", "repo", cmd.Repo, "deleted", deleted, "failed", failed)
}

func (g *Gateway) listBranches(ctx context.Context, cmd intent.Command) {
	branches, err := g.host.ListBranches(ctx, cmd.Repo)
	if err != nil {
		g.report(ctx, cmd, fmt.Sprintf("⚠️ Could not list branches: %v", err))
		return
	}
	base := g.baseBranch(ctx, cmd.Repo)

	var b strings.Builder
	fmt.Fprintf(&b, "**Branches in %s** (%d)\n\n", cmd.Repo, len(branches))
	for _, name := range branches {
		if name == base {
			fmt.Fprintf(&b, "- `%s` (default)\n", name)
			continue
		}
		fmt.Fprintf(&b, "- `%s`\n", name)
	}
	g.report(ctx, cmd, strings.TrimRight(b.String(), "\n"))
}
