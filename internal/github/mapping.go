package github

import (
	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
)

// toPullRequest converts the API representation to the executor type.
func toPullRequest(pr pullRequest) executor.PullRequest {
	out := executor.PullRequest{
		Number:    pr.Number,
		Title:     pr.Title,
		Body:      pr.Body,
		State:     executor.PRState(pr.State),
		HeadRef:   pr.Head.Ref,
		HeadSHA:   pr.Head.SHA,
		BaseRef:   pr.Base.Ref,
		Merged:    pr.Merged,
		Mergeable: pr.Mergeable,
	}
	if pr.User != nil {
		out.Author = pr.User.Login
	}
	if pr.CreatedAt != nil {
		out.CreatedAt = *pr.CreatedAt
	}
	return out
}

// toComment converts an issue comment for thread recovery.
func toComment(c issueComment) continuation.Comment {
	out := continuation.Comment{ID: c.ID, Body: c.Body}
	if c.User != nil {
		out.Author = c.User.Login
	}
	if c.CreatedAt != nil {
		out.CreatedAt = *c.CreatedAt
	}
	return out
}
