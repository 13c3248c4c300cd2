// Package github provides the GitHub REST API adapter for the executor.
//
// The Client is repository-agnostic: every call takes "owner/name" so one
// client serves every repository the webhook delivers events for.
package github

import (
	"net/http"
	"time"

	"github.com/prgate/prgate/internal/executor"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultStatusContext names the commit status prgate owns.
	DefaultStatusContext = "PR-Agent-Risk-Check"

	// DefaultMergeMethod is used when Client.MergeMethod is empty.
	DefaultMergeMethod = "squash"

	// DefaultMergeWait bounds WaitMergeable.
	DefaultMergeWait = 20 * time.Second

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed Link headers.
	MaxPages = 100

	maxResponseSize = 50 * 1024 * 1024
)

// Sentinel errors, shared with every other executor adapter.
var (
	ErrNotFound      = executor.ErrNotFound
	ErrConflict      = executor.ErrConflict
	ErrAlreadyExists = executor.ErrAlreadyExists
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	Token         string        // GitHub token
	BaseURL       string        // API base URL (default: https://api.github.com)
	HTTPClient    *http.Client  // Optional custom HTTP client
	MergeMethod   string        // merge | squash | rebase
	StatusContext string        // commit status context
	MergeWait     time.Duration // upper bound for WaitMergeable; 0 skips waiting
}

// user represents a GitHub user.
type user struct {
	Login string `json:"login"`
	Type  string `json:"type,omitempty"`
}

// pullRequest is the pulls API representation.
type pullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	Mergeable *bool      `json:"mergeable"`
	User      *user      `json:"user,omitempty"`
	Head      branchRef  `json:"head"`
	Base      branchRef  `json:"base"`
	CreatedAt *time.Time `json:"created_at"`
}

type branchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// issueComment is an issue/PR conversation comment.
type issueComment struct {
	ID        int64      `json:"id"`
	Body      string     `json:"body"`
	User      *user      `json:"user,omitempty"`
	CreatedAt *time.Time `json:"created_at"`
}

type repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

type branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type gitRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type content struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type mergeResponse struct {
	SHA     string `json:"sha"`
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
}
