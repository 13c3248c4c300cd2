// Package testhost provides in-memory executor adapters for workflow,
// gateway and webhook tests.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    host := testhost.New()
//	    host.AddPR(executor.PullRequest{Number: 7, HeadRef: "feature", HeadSHA: "abc"})
//	    ...
//	    comments := host.Posted(7)
//	}
package testhost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
)

// StatusCall records one SetCommitStatus call.
type StatusCall struct {
	SHA         string
	State       executor.CommitState
	Description string
}

// StateCall records one SetPullRequestState call.
type StateCall struct {
	Number int
	State  executor.PRState
}

// CreatedPR records one CreatePullRequest call.
type CreatedPR struct {
	Number     int
	Title      string
	Head, Base string
}

// Host is an in-memory executor.Host. All fields are guarded by the
// embedded mutex; use the accessor methods from tests.
type Host struct {
	mu sync.Mutex

	defaultBranch string
	prs           map[int]*executor.PullRequest
	diffs         map[int]string
	branches      map[string]string
	files         map[string]map[string]executor.File
	comments      map[int][]continuation.Comment
	failures      map[string]error

	statuses   []StatusCall
	states     []StateCall
	merges     []int
	updates    []executor.FileUpdate
	createdPRs []CreatedPR
	deleted    []string

	refuseMerge bool
	nextID      int64
	nextPR      int
	clock       time.Time
}

var _ executor.Host = (*Host)(nil)

// New returns a Host with a single "main" default branch.
func New() *Host {
	return &Host{
		defaultBranch: "main",
		prs:           map[int]*executor.PullRequest{},
		diffs:         map[int]string{},
		branches:      map[string]string{"main": "sha-main"},
		files:         map[string]map[string]executor.File{},
		comments:      map[int][]continuation.Comment{},
		failures:      map[string]error{},
		nextPR:        1000,
		clock:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FailOn makes the named operation (e.g. "GetPullRequest") return err.
func (h *Host) FailOn(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = err
}

// RefuseMerge makes MergePullRequest report a refused merge.
func (h *Host) RefuseMerge() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuseMerge = true
}

// AddPR registers a pull request; its head branch is created if missing.
func (h *Host) AddPR(pr executor.PullRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pr.State == "" {
		pr.State = executor.Open
	}
	if pr.BaseRef == "" {
		pr.BaseRef = h.defaultBranch
	}
	cp := pr
	h.prs[pr.Number] = &cp
	if pr.HeadRef != "" {
		if _, ok := h.branches[pr.HeadRef]; !ok {
			h.branches[pr.HeadRef] = pr.HeadSHA
		}
	}
}

// SetDiff sets the diff returned for a pull request.
func (h *Host) SetDiff(number int, diff string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diffs[number] = diff
}

// AddBranch creates a branch.
func (h *Host) AddBranch(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[name] = "sha-" + name
}

// AddFile stores a file on a branch.
func (h *Host) AddFile(branch, path, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.putFile(branch, path, content)
}

func (h *Host) putFile(branch, path, content string) {
	if h.files[branch] == nil {
		h.files[branch] = map[string]executor.File{}
	}
	h.nextID++
	h.files[branch][path] = executor.File{
		Path:    path,
		Ref:     branch,
		Content: content,
		SHA:     fmt.Sprintf("blob-%d", h.nextID),
	}
}

// AddComment appends a comment authored by author.
func (h *Host) AddComment(number int, author, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addComment(number, author, body)
}

func (h *Host) addComment(number int, author, body string) {
	h.nextID++
	h.clock = h.clock.Add(time.Minute)
	h.comments[number] = append(h.comments[number], continuation.Comment{
		ID:        h.nextID,
		Author:    author,
		Body:      body,
		CreatedAt: h.clock,
	})
}

// Posted returns the bodies of comments on number, oldest first.
func (h *Host) Posted(number int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.comments[number]))
	for _, c := range h.comments[number] {
		out = append(out, c.Body)
	}
	return out
}

// Statuses returns recorded commit status calls.
func (h *Host) Statuses() []StatusCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StatusCall(nil), h.statuses...)
}

// States returns recorded pull request state changes.
func (h *Host) States() []StateCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StateCall(nil), h.states...)
}

// Merges returns merged pull request numbers.
func (h *Host) Merges() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.merges...)
}

// Updates returns recorded file updates.
func (h *Host) Updates() []executor.FileUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]executor.FileUpdate(nil), h.updates...)
}

// CreatedPRs returns recorded pull request creations.
func (h *Host) CreatedPRs() []CreatedPR {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CreatedPR(nil), h.createdPRs...)
}

// Deleted returns deleted branch names in call order.
func (h *Host) Deleted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.deleted...)
}

// HasBranch reports whether name exists.
func (h *Host) HasBranch(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.branches[name]
	return ok
}

// File returns the stored file, if any.
func (h *Host) File(branch, path string) (executor.File, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[branch][path]
	return f, ok
}

// PR returns a copy of the stored pull request.
func (h *Host) PR(number int) (executor.PullRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pr, ok := h.prs[number]
	if !ok {
		return executor.PullRequest{}, false
	}
	return *pr, true
}

func (h *Host) fail(op string) error {
	return h.failures[op]
}

// executor.Host

func (h *Host) GetPullRequest(_ context.Context, _ string, number int) (executor.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("GetPullRequest"); err != nil {
		return executor.PullRequest{}, err
	}
	pr, ok := h.prs[number]
	if !ok {
		return executor.PullRequest{}, fmt.Errorf("pull request #%d: %w", number, executor.ErrNotFound)
	}
	return *pr, nil
}

func (h *Host) GetDiff(_ context.Context, _ string, number int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("GetDiff"); err != nil {
		return "", err
	}
	return h.diffs[number], nil
}

func (h *Host) FindOpenPullRequest(_ context.Context, _ string, head string) (int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("FindOpenPullRequest"); err != nil {
		return 0, false, err
	}
	for n, pr := range h.prs {
		if pr.HeadRef == head && pr.State == executor.Open {
			return n, true, nil
		}
	}
	return 0, false, nil
}

func (h *Host) CreatePullRequest(_ context.Context, _ string, title, head, base, body string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("CreatePullRequest"); err != nil {
		return 0, err
	}
	h.nextPR++
	n := h.nextPR
	h.prs[n] = &executor.PullRequest{Number: n, Title: title, Body: body, HeadRef: head, BaseRef: base, State: executor.Open}
	h.createdPRs = append(h.createdPRs, CreatedPR{Number: n, Title: title, Head: head, Base: base})
	return n, nil
}

func (h *Host) MergePullRequest(_ context.Context, _ string, number int, _ string) (executor.MergeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("MergePullRequest"); err != nil {
		return executor.MergeResult{}, err
	}
	if h.refuseMerge {
		return executor.MergeResult{Message: "Pull Request is not mergeable"}, nil
	}
	if pr, ok := h.prs[number]; ok {
		pr.Merged = true
		pr.State = executor.Closed
	}
	h.merges = append(h.merges, number)
	return executor.MergeResult{Merged: true, SHA: fmt.Sprintf("merge-%d", number)}, nil
}

func (h *Host) SetPullRequestState(_ context.Context, _ string, number int, state executor.PRState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("SetPullRequestState"); err != nil {
		return err
	}
	if pr, ok := h.prs[number]; ok {
		pr.State = state
	}
	h.states = append(h.states, StateCall{Number: number, State: state})
	return nil
}

func (h *Host) ListComments(_ context.Context, _ string, number int) ([]continuation.Comment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("ListComments"); err != nil {
		return nil, err
	}
	return append([]continuation.Comment(nil), h.comments[number]...), nil
}

func (h *Host) PostComment(_ context.Context, _ string, number int, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("PostComment"); err != nil {
		return err
	}
	h.addComment(number, "prgate[bot]", body)
	return nil
}

func (h *Host) DefaultBranch(context.Context, string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("DefaultBranch"); err != nil {
		return "", err
	}
	return h.defaultBranch, nil
}

func (h *Host) ListBranches(context.Context, string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("ListBranches"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(h.branches))
	for name := range h.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (h *Host) BranchExists(_ context.Context, _ string, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("BranchExists"); err != nil {
		return false, err
	}
	_, ok := h.branches[name]
	return ok, nil
}

func (h *Host) CreateBranch(_ context.Context, _ string, name, base string) (executor.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("CreateBranch"); err != nil {
		return "", err
	}
	if _, ok := h.branches[name]; ok {
		return executor.Exists, nil
	}
	sha, ok := h.branches[base]
	if !ok {
		return "", fmt.Errorf("base branch %s: %w", base, executor.ErrNotFound)
	}
	h.branches[name] = sha
	for path, f := range h.files[base] {
		if h.files[name] == nil {
			h.files[name] = map[string]executor.File{}
		}
		f.Ref = name
		h.files[name][path] = f
	}
	return executor.Created, nil
}

func (h *Host) DeleteBranch(_ context.Context, _ string, name string) (executor.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("DeleteBranch"); err != nil {
		return "", err
	}
	if _, ok := h.branches[name]; !ok {
		return executor.AlreadyGone, nil
	}
	delete(h.branches, name)
	h.deleted = append(h.deleted, name)
	return executor.Deleted, nil
}

func (h *Host) GetFile(_ context.Context, _ string, path, ref string) (executor.File, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("GetFile"); err != nil {
		return executor.File{}, err
	}
	f, ok := h.files[ref][path]
	if !ok {
		return executor.File{}, fmt.Errorf("%s@%s: %w", path, ref, executor.ErrNotFound)
	}
	return f, nil
}

func (h *Host) UpdateFile(_ context.Context, _ string, u executor.FileUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("UpdateFile"); err != nil {
		return err
	}
	if cur, ok := h.files[u.Branch][u.Path]; ok && cur.SHA != u.PriorSHA {
		return fmt.Errorf("%s: %w", u.Path, executor.ErrConflict)
	}
	h.putFile(u.Branch, u.Path, u.Content)
	h.updates = append(h.updates, u)
	return nil
}

func (h *Host) SetCommitStatus(_ context.Context, _ string, sha string, state executor.CommitState, description string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail("SetCommitStatus"); err != nil {
		return err
	}
	h.statuses = append(h.statuses, StatusCall{SHA: sha, State: state, Description: description})
	return nil
}

// Tickets is an in-memory executor.Tickets.
type Tickets struct {
	mu       sync.Mutex
	Err      error
	created  []executor.TicketFields
	comments map[string][]string
	labels   map[string][]string
}

var _ executor.Tickets = (*Tickets)(nil)

// NewTickets returns an empty ticket recorder.
func NewTickets() *Tickets {
	return &Tickets{comments: map[string][]string{}, labels: map[string][]string{}}
}

func (t *Tickets) CreateTicket(_ context.Context, fields executor.TicketFields) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return "", t.Err
	}
	t.created = append(t.created, fields)
	return fmt.Sprintf("SCRUM-%d", len(t.created)), nil
}

func (t *Tickets) CommentTicket(_ context.Context, id, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.comments[id] = append(t.comments[id], text)
	return nil
}

func (t *Tickets) LabelTicket(_ context.Context, id string, labels []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.labels[id] = append(t.labels[id], labels...)
	return nil
}

// Created returns created ticket fields.
func (t *Tickets) Created() []executor.TicketFields {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]executor.TicketFields(nil), t.created...)
}

// Comments returns comments added to id.
func (t *Tickets) Comments(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.comments[id]...)
}

// Labels returns labels added to id.
func (t *Tickets) Labels(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.labels[id]...)
}

// Notifier is an in-memory executor.Notifier.
type Notifier struct {
	mu   sync.Mutex
	Err  error
	sent []executor.Approval
}

var _ executor.Notifier = (*Notifier)(nil)

func (n *Notifier) SendApproval(_ context.Context, a executor.Approval) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, a)
	return nil
}

// Sent returns delivered approvals.
func (n *Notifier) Sent() []executor.Approval {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]executor.Approval(nil), n.sent...)
}

// Containing returns the posted comments on number that contain substr.
func (h *Host) Containing(number int, substr string) []string {
	var out []string
	for _, body := range h.Posted(number) {
		if strings.Contains(body, substr) {
			out = append(out, body)
		}
	}
	return out
}
