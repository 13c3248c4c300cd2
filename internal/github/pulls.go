package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/prgate/prgate/internal/executor"
)

// errMergeablePending is returned while GitHub is still computing mergeability.
var errMergeablePending = errors.New("mergeability not yet computed")

// mergePollInterval is the first WaitMergeable delay.
var mergePollInterval = 500 * time.Millisecond

// GetPullRequest fetches a pull request.
func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (executor.PullRequest, error) {
	base, err := repoPath(repo)
	if err != nil {
		return executor.PullRequest{}, err
	}
	var pr pullRequest
	if _, err := c.getJSON(ctx, base+"/pulls/"+strconv.Itoa(number), nil, &pr); err != nil {
		return executor.PullRequest{}, fmt.Errorf("failed to fetch pull request #%d: %w", number, err)
	}
	return toPullRequest(pr), nil
}

// GetDiff fetches the unified diff of a pull request.
func (c *Client) GetDiff(ctx context.Context, repo string, number int) (string, error) {
	base, err := repoPath(repo)
	if err != nil {
		return "", err
	}
	urlStr := c.buildURL(base+"/pulls/"+strconv.Itoa(number), nil)
	respBody, _, err := c.do(ctx, http.MethodGet, urlStr, nil, "application/vnd.github.v3.diff")
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff for #%d: %w", number, err)
	}
	return string(respBody), nil
}

// FindOpenPullRequest returns the number of an open pull request whose head
// is the given branch of the same repository.
func (c *Client) FindOpenPullRequest(ctx context.Context, repo, head string) (int, bool, error) {
	base, err := repoPath(repo)
	if err != nil {
		return 0, false, err
	}
	owner, _, _ := strings.Cut(repo, "/")
	var prs []pullRequest
	params := map[string]string{"state": "open", "head": owner + ":" + head}
	if _, err := c.getJSON(ctx, base+"/pulls", params, &prs); err != nil {
		return 0, false, fmt.Errorf("failed to list pull requests for %s: %w", head, err)
	}
	if len(prs) == 0 {
		return 0, false, nil
	}
	return prs[0].Number, true, nil
}

// CreatePullRequest opens a pull request and returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, repo, title, head, baseBranch, body string) (int, error) {
	base, err := repoPath(repo)
	if err != nil {
		return 0, err
	}
	reqBody := map[string]interface{}{
		"title": title,
		"head":  head,
		"base":  baseBranch,
		"body":  body,
	}
	respBody, _, err := c.doRequest(ctx, http.MethodPost, c.buildURL(base+"/pulls", nil), reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create pull request: %w", err)
	}
	var pr pullRequest
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return 0, fmt.Errorf("failed to parse create response: %w", err)
	}
	return pr.Number, nil
}

// SetPullRequestState opens or closes a pull request.
func (c *Client) SetPullRequestState(ctx context.Context, repo string, number int, state executor.PRState) error {
	base, err := repoPath(repo)
	if err != nil {
		return err
	}
	urlStr := c.buildURL(base+"/pulls/"+strconv.Itoa(number), nil)
	if _, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, map[string]string{"state": string(state)}); err != nil {
		return fmt.Errorf("failed to set #%d %s: %w", number, state, err)
	}
	return nil
}

// WaitMergeable polls until GitHub has computed mergeability, bounded by
// MergeWait. It returns the last fetched pull request.
func (c *Client) WaitMergeable(ctx context.Context, repo string, number int) (executor.PullRequest, error) {
	if c.MergeWait <= 0 {
		return c.GetPullRequest(ctx, repo, number)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = mergePollInterval
	bo.MaxElapsedTime = c.MergeWait

	var last executor.PullRequest
	err := backoff.Retry(func() error {
		pr, err := c.GetPullRequest(ctx, repo, number)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = pr
		if pr.Merged || pr.State == executor.Closed || pr.Mergeable != nil {
			return nil
		}
		return errMergeablePending
	}, backoff.WithContext(bo, ctx))
	if errors.Is(err, errMergeablePending) {
		// Let the merge call itself report the outcome.
		return last, nil
	}
	return last, err
}

// MergePullRequest merges a pull request with the configured method after
// waiting for mergeability. A refusal (405/409) is reported in the result,
// not as an error.
func (c *Client) MergePullRequest(ctx context.Context, repo string, number int, message string) (executor.MergeResult, error) {
	base, err := repoPath(repo)
	if err != nil {
		return executor.MergeResult{}, err
	}
	pr, err := c.WaitMergeable(ctx, repo, number)
	if err != nil {
		return executor.MergeResult{}, err
	}
	if pr.Merged {
		return executor.MergeResult{Merged: true, Message: "already merged"}, nil
	}

	method := c.MergeMethod
	if method == "" {
		method = DefaultMergeMethod
	}
	reqBody := map[string]interface{}{"merge_method": method}
	if message != "" {
		reqBody["commit_title"] = message
	}
	urlStr := c.buildURL(base+"/pulls/"+strconv.Itoa(number)+"/merge", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPut, urlStr, reqBody)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusMethodNotAllowed || apiErr.StatusCode == http.StatusConflict) {
			return executor.MergeResult{Message: apiErr.Message}, nil
		}
		return executor.MergeResult{}, fmt.Errorf("failed to merge #%d: %w", number, err)
	}
	var mr mergeResponse
	if err := json.Unmarshal(respBody, &mr); err != nil {
		return executor.MergeResult{}, fmt.Errorf("failed to parse merge response: %w", err)
	}
	return executor.MergeResult{Merged: mr.Merged, SHA: mr.SHA, Message: mr.Message}, nil
}
