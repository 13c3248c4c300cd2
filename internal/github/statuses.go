package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prgate/prgate/internal/executor"
)

// maxStatusDescription is GitHub's limit on status descriptions.
const maxStatusDescription = 140

// SetCommitStatus sets the prgate status on a commit.
func (c *Client) SetCommitStatus(ctx context.Context, repo, sha string, state executor.CommitState, description string) error {
	base, err := repoPath(repo)
	if err != nil {
		return err
	}
	if sha == "" {
		return fmt.Errorf("commit status: empty sha")
	}
	statusCtx := c.StatusContext
	if statusCtx == "" {
		statusCtx = DefaultStatusContext
	}
	if len(description) > maxStatusDescription {
		description = description[:maxStatusDescription-3] + "..."
	}
	reqBody := map[string]string{
		"state":       string(state),
		"description": description,
		"context":     statusCtx,
	}
	if _, _, err := c.doRequest(ctx, http.MethodPost, c.buildURL(base+"/statuses/"+sha, nil), reqBody); err != nil {
		return fmt.Errorf("failed to set status on %s: %w", sha, err)
	}
	return nil
}

var _ executor.Host = (*Client)(nil)
