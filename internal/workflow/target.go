package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/intent"
)

var (
	// "services/x.py", "./cmd/main.go", "Dockerfile.prod"
	filePattern = regexp.MustCompile(`([a-zA-Z0-9_\-\./]+\.[a-zA-Z0-9]{2,5})`)
	// "update config/settings" with no extension
	updatePathPattern = regexp.MustCompile(`(?i)update\s+([a-zA-Z0-9_\-\./]+)`)
	// "on branch test-v1", "to the branch test-v1"
	onBranchPattern = regexp.MustCompile(`(?i)\b(?:on|to)\s+(?:the\s+)?branch\s+([a-zA-Z0-9_\-\./]+)`)
	// "on test-v1 branch"
	branchSuffixPattern = regexp.MustCompile(`(?i)\b(?:on|to)\s+(?:the\s+)?([a-zA-Z0-9_\-\./]+)\s+branch\b`)
)

// TargetFile extracts the file a request wants changed.
func TargetFile(request string) (string, bool) {
	if m := filePattern.FindStringSubmatch(request); m != nil {
		return strings.TrimPrefix(m[1], "./"), true
	}
	if m := updatePathPattern.FindStringSubmatch(request); m != nil {
		return m[1], true
	}
	return "", false
}

// NamedBranch returns the branch a request explicitly targets, if any.
// Compound requests name the branch they create; otherwise an "on branch X"
// or "on X branch" phrase is honoured.
func NamedBranch(request string, number int) (string, bool) {
	if c, ok := intent.Classify(request, number).(intent.CompoundCreateAndChange); ok && c.Branch != "" {
		return c.Branch, true
	}
	if m := onBranchPattern.FindStringSubmatch(request); m != nil {
		return intent.SanitizeBranch(m[1]), true
	}
	if m := branchSuffixPattern.FindStringSubmatch(request); m != nil && !strings.EqualFold(m[1], "the") {
		return intent.SanitizeBranch(m[1]), true
	}
	return "", false
}

// branchSource records how the target branch was chosen.
type branchSource string

const (
	branchNamed  branchSource = "named"
	branchRecord branchSource = "record"
	branchHead   branchSource = "pr_head"
	branchProbe  branchSource = "probe"
	branchFresh  branchSource = "fresh"
)

// resolveBranch re-derives the mutation target deterministically: a branch
// named by the request, the branch stored in the record, the PR head, the
// newest existing probe candidate, and finally a fresh branch cut from the
// default branch.
func (c *Controller) resolveBranch(ctx context.Context, rec continuation.Record, pr *executor.PullRequest) (string, branchSource, error) {
	if name, ok := NamedBranch(rec.Request, rec.PRNumber); ok {
		if err := c.ensureBranch(ctx, rec.Repo, name); err != nil {
			return "", "", err
		}
		return name, branchNamed, nil
	}
	if rec.Branch != "" {
		return rec.Branch, branchRecord, nil
	}
	if pr != nil && pr.HeadRef != "" {
		return pr.HeadRef, branchHead, nil
	}

	if name, ok, err := c.probeBranches(ctx, rec.Repo); err != nil {
		c.logger.Warn("branch probe failed", "repo", rec.Repo, "error", err)
	} else if ok {
		return name, branchProbe, nil
	}

	base := c.defaultBranch(ctx, rec.Repo)
	name := fmt.Sprintf("%s-%s", c.cfg.FreshPrefix, uuid.NewString()[:8])
	if _, err := c.host.CreateBranch(ctx, rec.Repo, name, base); err != nil {
		return "", "", fmt.Errorf("create branch %s from %s: %w", name, base, err)
	}
	return name, branchFresh, nil
}

// ensureBranch creates name from the default branch when it does not exist.
func (c *Controller) ensureBranch(ctx context.Context, repo, name string) error {
	exists, err := c.host.BranchExists(ctx, repo, name)
	if err == nil && exists {
		return nil
	}
	base := c.defaultBranch(ctx, repo)
	if _, err := c.host.CreateBranch(ctx, repo, name, base); err != nil && !errors.Is(err, executor.ErrAlreadyExists) {
		return fmt.Errorf("create branch %s from %s: %w", name, base, err)
	}
	return nil
}

func (c *Controller) defaultBranch(ctx context.Context, repo string) string {
	base, err := c.host.DefaultBranch(ctx, repo)
	if err != nil || base == "" {
		c.logger.Warn("default branch lookup failed, using main", "repo", repo, "error", err)
		return "main"
	}
	return base
}

// probeBranches checks <prefix>1..<prefix>N concurrently and returns the
// highest-numbered one that exists.
func (c *Controller) probeBranches(ctx context.Context, repo string) (string, bool, error) {
	n := c.cfg.ProbeCount
	if n <= 0 || c.cfg.ProbePrefix == "" {
		return "", false, nil
	}
	found := make([]bool, n+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := 1; i <= n; i++ {
		g.Go(func() error {
			ok, err := c.host.BranchExists(gctx, repo, fmt.Sprintf("%s%d", c.cfg.ProbePrefix, i))
			if err != nil {
				return err
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false, err
	}
	for i := n; i >= 1; i-- {
		if found[i] {
			return fmt.Sprintf("%s%d", c.cfg.ProbePrefix, i), true, nil
		}
	}
	return "", false, nil
}
