// Package executor defines the side-effect surface the workflow drives:
// the hosting API, governance tickets and approval notifications. Adapters
// live in internal/github, internal/jira and internal/notify.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prgate/prgate/internal/continuation"
)

// Sentinel errors shared by every adapter.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Outcome reports the effect of an idempotent branch operation.
type Outcome string

const (
	Created     Outcome = "created"
	Exists      Outcome = "exists"
	Deleted     Outcome = "deleted"
	AlreadyGone Outcome = "already_gone"
)

// PRState is the open/closed state of a pull request.
type PRState string

const (
	Open   PRState = "open"
	Closed PRState = "closed"
)

// CommitState is a commit status state.
type CommitState string

const (
	Pending CommitState = "pending"
	Success CommitState = "success"
	Failure CommitState = "failure"
	Error   CommitState = "error"
)

// PullRequest is the subset of pull request fields the workflow reads.
type PullRequest struct {
	Number    int
	Title     string
	Body      string
	State     PRState
	HeadRef   string
	HeadSHA   string
	BaseRef   string
	Author    string
	Merged    bool
	Mergeable *bool // nil while the host is still computing it
	CreatedAt time.Time
}

// File is a file's content at a ref. SHA is the blob revision used as the
// prior-revision reference on update.
type File struct {
	Path    string
	Ref     string
	Content string
	SHA     string
}

// FileUpdate writes Content to Path on Branch. PriorSHA must be set when the
// file exists.
type FileUpdate struct {
	Path     string
	Branch   string
	Content  string
	Message  string
	PriorSHA string
}

// MergeResult reports a merge attempt. A refused merge is not an error.
type MergeResult struct {
	Merged  bool
	SHA     string
	Message string
}

// Host is the hosting provider (GitHub) surface.
type Host interface {
	GetPullRequest(ctx context.Context, repo string, number int) (PullRequest, error)
	GetDiff(ctx context.Context, repo string, number int) (string, error)
	FindOpenPullRequest(ctx context.Context, repo, head string) (int, bool, error)
	CreatePullRequest(ctx context.Context, repo, title, head, base, body string) (int, error)
	MergePullRequest(ctx context.Context, repo string, number int, message string) (MergeResult, error)
	SetPullRequestState(ctx context.Context, repo string, number int, state PRState) error

	ListComments(ctx context.Context, repo string, number int) ([]continuation.Comment, error)
	PostComment(ctx context.Context, repo string, number int, body string) error

	DefaultBranch(ctx context.Context, repo string) (string, error)
	ListBranches(ctx context.Context, repo string) ([]string, error)
	BranchExists(ctx context.Context, repo, name string) (bool, error)
	CreateBranch(ctx context.Context, repo, name, base string) (Outcome, error)
	DeleteBranch(ctx context.Context, repo, name string) (Outcome, error)

	GetFile(ctx context.Context, repo, path, ref string) (File, error)
	UpdateFile(ctx context.Context, repo string, update FileUpdate) error

	SetCommitStatus(ctx context.Context, repo, sha string, state CommitState, description string) error
}

// TicketFields describes a governance ticket.
type TicketFields struct {
	Repo     string
	PRNumber int
	Level    string
	Summary  string
	Analysis string
	Labels   []string
}

// DefaultTicketProject is the ticket key prefix used when none is configured.
const DefaultTicketProject = "SCRUM"

// LocalTicketID is the ticket id used when no tracker could issue one.
func LocalTicketID(project string, now time.Time) string {
	if project == "" {
		project = DefaultTicketProject
	}
	return fmt.Sprintf("%s-%d", project, now.Unix()%1000)
}

// Tickets is the governance ticket tracker (Jira).
type Tickets interface {
	CreateTicket(ctx context.Context, fields TicketFields) (string, error)
	CommentTicket(ctx context.Context, id, text string) error
	LabelTicket(ctx context.Context, id string, labels []string) error
}

// Approval is everything an approver needs to decide on a paused request.
type Approval struct {
	TicketID   string
	Repo       string
	PRNumber   int
	Title      string
	Level      string
	Analysis   string
	Request    string
	Token      string
	ApproveURL string
	RejectURL  string
}

// Notifier delivers approval requests.
type Notifier interface {
	SendApproval(ctx context.Context, approval Approval) error
}
