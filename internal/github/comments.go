package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prgate/prgate/internal/continuation"
)

// ListComments returns every conversation comment on an issue or PR.
func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]continuation.Comment, error) {
	base, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	raw, err := listAll[issueComment](ctx, c, base+"/issues/"+strconv.Itoa(number)+"/comments")
	if err != nil {
		return nil, fmt.Errorf("failed to list comments on #%d: %w", number, err)
	}
	out := make([]continuation.Comment, len(raw))
	for i, rc := range raw {
		out[i] = toComment(rc)
	}
	return out, nil
}

// PostComment adds a conversation comment.
func (c *Client) PostComment(ctx context.Context, repo string, number int, body string) error {
	base, err := repoPath(repo)
	if err != nil {
		return err
	}
	urlStr := c.buildURL(base+"/issues/"+strconv.Itoa(number)+"/comments", nil)
	if _, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"body": body}); err != nil {
		return fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return nil
}
