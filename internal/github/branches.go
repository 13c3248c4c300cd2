package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prgate/prgate/internal/executor"
)

// listAll fetches every page of a list endpoint.
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		params := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		var items []T
		headers, err := c.getJSON(ctx, path, params, &items)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if _, ok := hasNextPage(headers); !ok {
			return all, nil
		}
	}
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	base, err := repoPath(repo)
	if err != nil {
		return "", err
	}
	var r repository
	if _, err := c.getJSON(ctx, base, nil, &r); err != nil {
		return "", fmt.Errorf("failed to fetch repository %s: %w", repo, err)
	}
	if r.DefaultBranch == "" {
		return "main", nil
	}
	return r.DefaultBranch, nil
}

// ListBranches returns every branch name, following pagination.
func (c *Client) ListBranches(ctx context.Context, repo string) ([]string, error) {
	base, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	branches, err := listAll[branch](ctx, c, base+"/branches")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	names := make([]string, len(branches))
	for i, b := range branches {
		names[i] = b.Name
	}
	return names, nil
}

// BranchExists reports whether a branch exists.
func (c *Client) BranchExists(ctx context.Context, repo, name string) (bool, error) {
	base, err := repoPath(repo)
	if err != nil {
		return false, err
	}
	var b branch
	if _, err := c.getJSON(ctx, base+"/branches/"+escapePath(name), nil, &b); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch branch %s: %w", name, err)
	}
	return true, nil
}

// headSHA resolves a branch to its commit sha.
func (c *Client) headSHA(ctx context.Context, base, name string) (string, error) {
	var ref gitRef
	if _, err := c.getJSON(ctx, base+"/git/ref/heads/"+escapePath(name), nil, &ref); err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates name from the head of baseBranch. An existing branch
// is reported as executor.Exists.
func (c *Client) CreateBranch(ctx context.Context, repo, name, baseBranch string) (executor.Outcome, error) {
	base, err := repoPath(repo)
	if err != nil {
		return "", err
	}
	sha, err := c.headSHA(ctx, base, baseBranch)
	if err != nil {
		return "", err
	}
	reqBody := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": sha,
	}
	if _, _, err := c.doRequest(ctx, http.MethodPost, c.buildURL(base+"/git/refs", nil), reqBody); err != nil {
		if StatusCode(err) == http.StatusUnprocessableEntity {
			return executor.Exists, nil
		}
		return "", fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return executor.Created, nil
}

// DeleteBranch deletes a branch. A missing branch is reported as
// executor.AlreadyGone.
func (c *Client) DeleteBranch(ctx context.Context, repo, name string) (executor.Outcome, error) {
	base, err := repoPath(repo)
	if err != nil {
		return "", err
	}
	urlStr := c.buildURL(base+"/git/refs/heads/"+escapePath(name), nil)
	if _, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, nil); err != nil {
		switch StatusCode(err) {
		case http.StatusNotFound, http.StatusUnprocessableEntity:
			return executor.AlreadyGone, nil
		}
		return "", fmt.Errorf("failed to delete branch %s: %w", name, err)
	}
	return executor.Deleted, nil
}
