// Package event decodes GitHub webhook deliveries into the flat Event the
// gateway routes on.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the X-GitHub-Event header value.
type Kind string

const (
	Push         Kind = "push"
	PullRequest  Kind = "pull_request"
	IssueComment Kind = "issue_comment"
	Ping         Kind = "ping"
)

// Lifecycle actions that start an automatic analysis.
const (
	ActionOpened      = "opened"
	ActionSynchronize = "synchronize"
	ActionReopened    = "reopened"
	ActionCreated     = "created"
)

// ZeroSHA is the "after" value of a push that deleted its ref.
const ZeroSHA = "0000000000000000000000000000000000000000"

// ErrUnsupported is returned for event kinds the gateway does not handle.
var ErrUnsupported = errors.New("unsupported event")

// Event is one inbound delivery. Only the fields for its Kind are set.
type Event struct {
	Kind     Kind
	Delivery string
	Action   string
	Repo     string
	Sender   string

	// push
	Ref     string
	After   string
	Deleted bool

	// pull_request and issue_comment
	Number  int
	HeadSHA string
	HeadRef string
	Title   string
	Body    string
	IsPR    bool

	// issue_comment
	CommentID     int64
	CommentBody   string
	CommentAuthor string
	AuthorIsBot   bool
}

// Branch returns the pushed branch name, or "" for tags and other refs.
func (e Event) Branch() string {
	name, ok := strings.CutPrefix(e.Ref, "refs/heads/")
	if !ok {
		return ""
	}
	return name
}

// Lifecycle reports whether the event is a PR opened, synchronize or
// reopened action.
func (e Event) Lifecycle() bool {
	if e.Kind != PullRequest {
		return false
	}
	switch e.Action {
	case ActionOpened, ActionSynchronize, ActionReopened:
		return true
	}
	return false
}

// BranchDeleted reports whether a push removed its ref.
func (e Event) BranchDeleted() bool {
	return e.Deleted || e.After == ZeroSHA
}

type account struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

type repository struct {
	FullName string `json:"full_name"`
}

type pullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Head   struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
}

type issue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	PullRequest json.RawMessage `json:"pull_request"`
}

type comment struct {
	ID   int64    `json:"id"`
	Body string   `json:"body"`
	User *account `json:"user"`
}

type payload struct {
	Action      string       `json:"action"`
	Repository  *repository  `json:"repository"`
	Sender      *account     `json:"sender"`
	Ref         string       `json:"ref"`
	After       string       `json:"after"`
	Deleted     bool         `json:"deleted"`
	PullRequest *pullRequest `json:"pull_request"`
	Issue       *issue       `json:"issue"`
	Comment     *comment     `json:"comment"`
}

// Parse decodes a delivery body for the given event kind.
func Parse(kind, delivery string, body []byte) (Event, error) {
	ev := Event{Kind: Kind(kind), Delivery: delivery}
	switch ev.Kind {
	case Push, PullRequest, IssueComment:
	case Ping:
		return ev, nil
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnsupported, kind)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return ev, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	if p.Repository == nil || p.Repository.FullName == "" {
		return ev, fmt.Errorf("decode %s payload: missing repository", kind)
	}
	ev.Action = p.Action
	ev.Repo = p.Repository.FullName
	if p.Sender != nil {
		ev.Sender = p.Sender.Login
	}

	switch ev.Kind {
	case Push:
		ev.Ref, ev.After, ev.Deleted = p.Ref, p.After, p.Deleted
	case PullRequest:
		if p.PullRequest == nil {
			return ev, fmt.Errorf("decode %s payload: missing pull_request", kind)
		}
		ev.Number = p.PullRequest.Number
		ev.Title = p.PullRequest.Title
		ev.Body = p.PullRequest.Body
		ev.HeadRef = p.PullRequest.Head.Ref
		ev.HeadSHA = p.PullRequest.Head.SHA
		ev.IsPR = true
	case IssueComment:
		if p.Issue == nil || p.Comment == nil {
			return ev, fmt.Errorf("decode %s payload: missing issue or comment", kind)
		}
		ev.Number = p.Issue.Number
		ev.Title = p.Issue.Title
		ev.Body = p.Issue.Body
		ev.IsPR = len(p.Issue.PullRequest) > 0 && string(p.Issue.PullRequest) != "null"
		ev.CommentID = p.Comment.ID
		ev.CommentBody = p.Comment.Body
		if p.Comment.User != nil {
			ev.CommentAuthor = p.Comment.User.Login
			ev.AuthorIsBot = p.Comment.User.Type == "Bot"
		}
	}
	return ev, nil
}
