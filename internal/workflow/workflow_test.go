package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/risk"
	"github.com/prgate/prgate/internal/testutil/testhost"
)

const repo = "acme/api"

// stubBackend answers analysis and transform prompts with fixed text.
type stubBackend struct {
	mu        sync.Mutex
	analysis  string
	transform string
	block     bool
	prompts   []string
}

func (b *stubBackend) Complete(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if strings.HasPrefix(prompt, "You are a Code Editor") {
		return b.transform, nil
	}
	return b.analysis, nil
}

type stubLinks struct{}

func (stubLinks) DecisionURL(decision intent.Decision, repo string, number int) string {
	return fmt.Sprintf("https://gate.example/approvals?decision=%s&repo=%s&pr_num=%d", decision, repo, number)
}

type fixture struct {
	host     *testhost.Host
	tickets  *testhost.Tickets
	notifier *testhost.Notifier
	backend  *stubBackend
	ctrl     *Controller
}

func newFixture(t *testing.T, analysis string) *fixture {
	t.Helper()
	f := &fixture{
		host:     testhost.New(),
		tickets:  testhost.NewTickets(),
		notifier: &testhost.Notifier{},
		backend:  &stubBackend{analysis: analysis},
	}
	f.ctrl = f.build(risk.Config{})
	return f
}

func (f *fixture) build(rc risk.Config) *Controller {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return time.Unix(1700000612, 0) }
	return New(Deps{
		Host:     f.host,
		Tickets:  f.tickets,
		Notifier: f.notifier,
		Assessor: risk.NewAnalyzer(f.backend, risk.NewKnowledgeBase("", "", "", nil), rc, nil),
		Links:    stubLinks{},
	}, cfg)
}

func TestAnalyzeLowAutomaticMerges(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: LOW\nREASONING: README typo.")
	f.host.AddPR(executor.PullRequest{Number: 42, Title: "Fix typo", HeadRef: "typo", HeadSHA: "abc123"})
	f.host.SetDiff(42, "--- a/README.md\n+++ b/README.md")

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 42, Automatic: true})

	assert.Equal(t, AutoExecuted, res.State)
	assert.Equal(t, risk.Low, res.Level)
	assert.Nil(t, res.Ticket)
	assert.Equal(t, []int{42}, f.host.Merges())
	assert.Empty(t, f.tickets.Created())
	assert.Empty(t, f.notifier.Sent())

	posted := f.host.Posted(42)
	require.Len(t, posted, 1)
	assert.Contains(t, posted[0], "Auto-Merge")
	assert.Contains(t, posted[0], "README typo")
	assert.False(t, continuation.IsAnalysis(posted[0]), "LOW report must not look like a paused analysis")

	require.Len(t, f.host.Statuses(), 1)
	assert.Equal(t, testhost.StatusCall{SHA: "abc123", State: executor.Success, Description: "Low Risk - Safe to Merge"}, f.host.Statuses()[0])

	require.Len(t, f.backend.prompts, 1)
	assert.Contains(t, f.backend.prompts[0], continuation.AutomaticTriggerRequest)
	assert.Contains(t, f.backend.prompts[0], "README.md")
}

func TestAnalyzeLowRefusedMerge(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: LOW")
	f.host.AddPR(executor.PullRequest{Number: 42, HeadSHA: "abc"})
	f.host.RefuseMerge()

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 42, Automatic: true})

	assert.Equal(t, AutoExecuted, res.State)
	posted := f.host.Posted(42)
	require.Len(t, posted, 1)
	assert.Contains(t, posted[0], "merge was refused")
	assert.Contains(t, posted[0], "not mergeable")
}

func TestAnalyzeLowManualReportsOnly(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: LOW\nREASONING: comment only.")
	f.host.AddPR(executor.PullRequest{Number: 5, HeadSHA: "s5"})

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 5, Request: "@pr-agent update docs/a.md"})

	assert.Equal(t, Analyzed, res.State)
	assert.Empty(t, f.host.Merges())
	assert.Empty(t, f.host.Statuses())
	posted := f.host.Posted(5)
	require.Len(t, posted, 1)
	assert.True(t, strings.HasPrefix(posted[0], reportHeader))
}

func TestAnalyzeHighPauses(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH\nREASONING: touches payments.")
	f.host.AddPR(executor.PullRequest{Number: 7, Title: "Rework payments", HeadRef: "pay", HeadSHA: "sha7"})

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 7, Automatic: true})

	assert.Equal(t, PausedForApproval, res.State)
	assert.Equal(t, risk.High, res.Level)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, "SCRUM-1", res.Ticket.ID)
	assert.Equal(t, TicketPending, res.Ticket.Status)

	assert.Equal(t, []testhost.StateCall{{Number: 7, State: executor.Closed}}, f.host.States())
	assert.Equal(t, []testhost.StatusCall{{SHA: "sha7", State: executor.Failure, Description: "High Risk - Approval Required"}}, f.host.Statuses())
	assert.Empty(t, f.host.Merges())

	created := f.tickets.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "[HIGH] Audit: acme/api - PR #7", created[0].Summary)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "SCRUM-1", sent[0].TicketID)
	assert.Equal(t, "Rework payments", sent[0].Title)
	assert.NotEmpty(t, sent[0].Token)
	assert.Contains(t, sent[0].ApproveURL, "decision=approved")
	assert.Contains(t, sent[0].RejectURL, "decision=rejected")

	posted := f.host.Posted(7)
	require.Len(t, posted, 1)
	assert.Contains(t, posted[0], "**Jira Ticket:** SCRUM-1")
	assert.Contains(t, posted[0], "Paused")

	token, ok := continuation.ExtractToken(posted[0])
	require.True(t, ok)
	rec, err := continuation.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, continuation.KindRiskAcceptance, rec.Kind)
	assert.Equal(t, "SCRUM-1", rec.TicketID)
	assert.Equal(t, "sha7", rec.CommitSHA)
	assert.Equal(t, "HIGH", rec.RiskLevel)
	assert.Equal(t, 7, rec.PRNumber)
	assert.Equal(t, sent[0].Token, token)
}

func TestAnalyzeBackendTimeoutDegrades(t *testing.T) {
	f := newFixture(t, "")
	f.backend.block = true
	f.ctrl = f.build(risk.Config{Timeout: 20 * time.Millisecond})
	f.host.AddPR(executor.PullRequest{Number: 9, HeadSHA: "s9"})

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 9, Automatic: true})

	assert.Equal(t, DegradedPause, res.State)
	assert.Equal(t, risk.Medium, res.Level)
	assert.True(t, res.Degraded)
	assert.True(t, res.State.Paused())

	posted := f.host.Posted(9)
	require.Len(t, posted, 1)
	assert.True(t, strings.HasPrefix(posted[0], fallbackHeader))
	assert.Contains(t, posted[0], "Please review manually")
	_, ok := continuation.ExtractToken(posted[0])
	assert.True(t, ok, "degraded pause must still carry a token")
	assert.Equal(t, "Medium Risk - Approval Required", f.host.Statuses()[0].Description)
}

func TestAnalyzeTicketFallback(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: MEDIUM")
	f.tickets.Err = errors.New("jira down")
	f.host.AddPR(executor.PullRequest{Number: 3, HeadSHA: "s3"})

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 3, Request: "update a/b.go"})

	require.NotNil(t, res.Ticket)
	assert.Equal(t, "SCRUM-612", res.Ticket.ID)
	assert.Contains(t, f.host.Posted(3)[0], "SCRUM-612")
}

func TestAnalyzeSurvivesCollaboratorFailures(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.host.FailOn("GetPullRequest", errors.New("boom"))
	f.host.FailOn("GetDiff", errors.New("boom"))
	f.host.FailOn("SetCommitStatus", errors.New("boom"))
	f.notifier.Err = errors.New("smtp down")

	res := f.ctrl.Analyze(context.Background(), Trigger{Repo: repo, PRNumber: 11, HeadSHA: "event-sha", Automatic: true})

	assert.Equal(t, PausedForApproval, res.State)
	assert.Equal(t, "event-sha", res.Ticket.CommitSHA)
	require.Len(t, f.backend.prompts, 1)
	assert.Contains(t, f.backend.prompts[0], risk.NoDiff)
	assert.Len(t, f.host.Posted(11), 1)
}

func TestApproveRiskAcceptance(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.host.AddPR(executor.PullRequest{Number: 7, HeadRef: "pay", HeadSHA: "sha7"})
	ctx := context.Background()
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 7, Automatic: true})

	res := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 7, Message: "@pr-agent approve", Actor: "alice"})

	assert.Equal(t, Executed, res.State)
	assert.Equal(t, continuation.SourceToken, res.Source)
	assert.Equal(t, TicketExecuted, res.Ticket.Status)
	assert.Equal(t, []testhost.StateCall{
		{Number: 7, State: executor.Closed},
		{Number: 7, State: executor.Open},
	}, f.host.States())
	assert.Equal(t, []int{7}, f.host.Merges())
	assert.Empty(t, f.host.Updates())

	statuses := f.host.Statuses()
	assert.Equal(t, testhost.StatusCall{SHA: "sha7", State: executor.Success, Description: "Approved by alice"}, statuses[len(statuses)-1])

	assert.Len(t, f.host.Containing(7, continuation.RiskAcceptedMarker), 1)
	assert.Len(t, f.host.Containing(7, "Merged Automatically"), 1)
	require.Len(t, f.tickets.Comments("SCRUM-1"), 1)
	assert.Contains(t, f.tickets.Comments("SCRUM-1")[0], "Approved by alice")
	assert.Equal(t, []string{"approved"}, f.tickets.Labels("SCRUM-1"))
}

func TestApproveCodeChangeOnNamedBranch(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: MEDIUM\nREASONING: retry semantics.")
	f.backend.transform = "```python\ndef call():\n    return retry(fetch)\n```"
	f.host.AddPR(executor.PullRequest{Number: 12, HeadRef: "feature", HeadSHA: "sha12"})
	f.host.AddBranch("test-v1")
	f.host.AddFile("test-v1", "services/x.py", "def call():\n    return fetch()\n")
	before, _ := f.host.File("test-v1", "services/x.py")
	ctx := context.Background()

	request := "@pr-agent update services/x.py to add retries on branch test-v1"
	paused := f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 12, Request: request})
	require.Equal(t, PausedForApproval, paused.State)

	res := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 12, Message: "approve", Actor: "bob"})

	require.Empty(t, res.Failure)
	assert.Equal(t, Executed, res.State)
	assert.Equal(t, "test-v1", res.Branch)
	assert.Equal(t, "services/x.py", res.Path)

	updates := f.host.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "test-v1", updates[0].Branch)
	assert.Equal(t, before.SHA, updates[0].PriorSHA)
	assert.Equal(t, "def call():\n    return retry(fetch)\n", updates[0].Content)
	assert.True(t, strings.HasPrefix(updates[0].Message, "SCRUM-1: "))

	executed := f.host.Containing(12, continuation.ExecutedMarker)
	require.Len(t, executed, 1)
	assert.Contains(t, executed[0], "+1 −1")
	assert.Contains(t, executed[0], "bob")
	assert.True(t, continuation.IsAgentComment(executed[0]))
	assert.False(t, intent.HasMention(executed[0], intent.DefaultMention), "executed comment echoes the mention")
	assert.Empty(t, f.host.Merges())
	assert.ElementsMatch(t, []string{"approved", "executed"}, f.tickets.Labels("SCRUM-1"))
}

func TestApproveWithoutTokenCreatesFreshBranch(t *testing.T) {
	f := newFixture(t, "")
	f.host.FailOn("GetPullRequest", errors.New("not reachable"))
	f.host.AddFile("main", "app/config.yaml", "debug: true\n")
	f.backend.transform = "debug: false"

	res := f.ctrl.Approve(context.Background(), Decision{
		Repo:     repo,
		PRNumber: 30,
		Message:  "approve Context: update app/config.yaml to set debug false",
		Actor:    "dana",
	})

	require.Empty(t, res.Failure)
	assert.Equal(t, Executed, res.State)
	assert.Equal(t, continuation.SourceTitle, res.Source)
	assert.True(t, strings.HasPrefix(res.Branch, "approved-change-"), res.Branch)
	assert.True(t, f.host.HasBranch(res.Branch))
	file, ok := f.host.File(res.Branch, "app/config.yaml")
	require.True(t, ok)
	assert.Equal(t, "debug: false\n", file.Content)
	assert.Empty(t, f.host.Statuses(), "no commit sha is known")
	assert.Equal(t, continuation.UnknownTicket, res.Ticket.ID)
}

func TestApproveProbesNewestTestBranch(t *testing.T) {
	f := newFixture(t, "")
	f.host.FailOn("GetPullRequest", errors.New("not reachable"))
	f.host.AddBranch("test-v3")
	f.host.AddBranch("test-v7")
	f.host.AddFile("test-v7", "lib/a.go", "package a\n")
	f.backend.transform = "package a\n\nconst X = 1\n"

	res := f.ctrl.Approve(context.Background(), Decision{Repo: repo, PRNumber: 31, Message: "approve Context: update lib/a.go", Actor: "eve"})

	assert.Equal(t, Executed, res.State)
	assert.Equal(t, "test-v7", res.Branch)
}

func TestApproveMissingFileFails(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.host.AddPR(executor.PullRequest{Number: 14, HeadRef: "feature", HeadSHA: "s14"})
	ctx := context.Background()
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 14, Request: "update services/missing.py"})

	res := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 14, Message: "approve", Actor: "bob"})

	assert.Equal(t, PausedForApproval, res.State)
	assert.Equal(t, "File `services/missing.py` not found on branch `feature`", res.Failure)
	assert.Equal(t, TicketPending, res.Ticket.Status)
	assert.Len(t, f.host.Containing(14, "Execution Failed"), 1)
	assert.Empty(t, f.host.Updates())
}

func TestApproveNoTargetFile(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.host.AddPR(executor.PullRequest{Number: 15, HeadRef: "feature", HeadSHA: "s15"})
	ctx := context.Background()
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 15, Request: "fix the flaky behaviour"})

	res := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 15, Message: "approve", Actor: "bob"})

	assert.Equal(t, "no target file in request", res.Failure)
	assert.Len(t, f.host.Containing(15, "No Target File"), 1)
}

func TestApproveConflict(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.backend.transform = "new"
	f.host.AddPR(executor.PullRequest{Number: 16, HeadRef: "feature", HeadSHA: "s16"})
	f.host.AddFile("feature", "a.txt", "old")
	f.host.FailOn("UpdateFile", fmt.Errorf("a.txt: %w", executor.ErrConflict))
	ctx := context.Background()
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 16, Request: "update a.txt"})

	res := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 16, Message: "approve", Actor: "bob"})

	assert.Contains(t, res.Failure, "Approve again to retry")
	assert.Equal(t, PausedForApproval, res.State)
}

func TestRejectAndDuplicate(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.host.AddPR(executor.PullRequest{Number: 7, HeadSHA: "sha7"})
	ctx := context.Background()
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 7, Automatic: true})

	res := f.ctrl.Reject(ctx, Decision{Repo: repo, PRNumber: 7, Message: "reject", Actor: "carol"})

	assert.Equal(t, Rejected, res.State)
	assert.Equal(t, TicketRejected, res.Ticket.Status)
	assert.Len(t, f.host.Containing(7, continuation.RejectedMarker), 1)
	require.Len(t, f.tickets.Comments("SCRUM-1"), 1)
	assert.Contains(t, f.tickets.Comments("SCRUM-1")[0], "Rejected by carol")
	assert.Equal(t, []string{"rejected"}, f.tickets.Labels("SCRUM-1"))

	again := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 7, Message: "approve", Actor: "dave"})

	assert.True(t, again.Duplicate)
	assert.Equal(t, Rejected, again.State)
	assert.Empty(t, f.host.Merges())
	assert.Len(t, f.host.Containing(7, "already processed"), 1)
	assert.Len(t, f.tickets.Comments("SCRUM-1"), 1)
}

func TestApproveAfterNewAnalysisIsNotDuplicate(t *testing.T) {
	f := newFixture(t, "RISK LEVEL: HIGH")
	f.host.AddPR(executor.PullRequest{Number: 8, HeadSHA: "sha8"})
	ctx := context.Background()
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 8, Automatic: true})
	f.ctrl.Reject(ctx, Decision{Repo: repo, PRNumber: 8, Message: "reject", Actor: "carol"})
	f.ctrl.Analyze(ctx, Trigger{Repo: repo, PRNumber: 8, Automatic: true})

	res := f.ctrl.Approve(ctx, Decision{Repo: repo, PRNumber: 8, Message: "approve", Actor: "carol"})

	assert.False(t, res.Duplicate)
	assert.Equal(t, Executed, res.State)
	assert.Equal(t, "SCRUM-2", res.Ticket.ID)
}

func TestApproveInlineTokenWins(t *testing.T) {
	f := newFixture(t, "")
	f.host.AddPR(executor.PullRequest{Number: 20, HeadSHA: "sha20"})
	token, err := continuation.Encode(continuation.NewRecord(continuation.AutomaticTriggerRequest, "SCRUM-77", repo, 20, "sha20"))
	require.NoError(t, err)

	res := f.ctrl.Approve(context.Background(), Decision{Repo: repo, PRNumber: 20, Message: "approve Params: " + token, Actor: "web"})

	assert.Equal(t, continuation.SourceInline, res.Source)
	assert.Equal(t, "SCRUM-77", res.Ticket.ID)
	assert.Equal(t, []int{20}, f.host.Merges())
}

func TestTargetFile(t *testing.T) {
	tests := []struct {
		request string
		want    string
		ok      bool
	}{
		{"update services/x.py to add retries", "services/x.py", true},
		{"change ./cmd/main.go to log", "cmd/main.go", true},
		{"fix Dockerfile.prod base image", "Dockerfile.prod", true},
		{"update config/settings please", "config/settings", true},
		{"please add retries", "", false},
	}
	for _, tt := range tests {
		got, ok := TargetFile(tt.request)
		assert.Equal(t, tt.ok, ok, tt.request)
		assert.Equal(t, tt.want, got, tt.request)
	}
}

func TestNamedBranch(t *testing.T) {
	tests := []struct {
		request string
		want    string
		ok      bool
	}{
		{"create test-v2 branch and update a.py", "test-v2", true},
		{"update a.py on branch test-v1", "test-v1", true},
		{"update a.py to the branch release_2", "release_2", true},
		{"update a.py on the hotfix branch", "hotfix", true},
		{"update a.py to add retries", "", false},
	}
	for _, tt := range tests {
		got, ok := NamedBranch(tt.request, 4)
		assert.Equal(t, tt.ok, ok, tt.request)
		assert.Equal(t, tt.want, got, tt.request)
	}
}

func TestComputeDiffStat(t *testing.T) {
	stat := ComputeDiffStat("a\nb\nc\n", "a\nB\nc\nd\n")
	assert.Equal(t, 2, stat.Added)
	assert.Equal(t, 1, stat.Deleted)
	assert.Greater(t, stat.Similarity, 0.5)
	assert.Less(t, stat.Similarity, 1.0)

	same := ComputeDiffStat("x\n", "x\n")
	assert.Equal(t, DiffStat{Similarity: 1}, same)
	assert.Equal(t, "+0 −0, 100% similar", same.String())

	assert.Equal(t, DiffStat{Similarity: 1}, ComputeDiffStat("", ""))
}

func TestStateHelpers(t *testing.T) {
	for _, s := range []State{AutoExecuted, Analyzed, Executed, Rejected} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{Analyzing, PausedForApproval, DegradedPause, Executing} {
		assert.False(t, s.Terminal(), s)
	}
	assert.True(t, DegradedPause.Paused())
	assert.False(t, Executing.Paused())
}
