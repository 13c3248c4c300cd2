package event

import (
	"errors"
	"testing"
)

func TestParsePullRequest(t *testing.T) {
	body := `{
		"action": "synchronize",
		"repository": {"full_name": "acme/api"},
		"sender": {"login": "alice", "type": "User"},
		"pull_request": {
			"number": 42,
			"title": "Add retries",
			"body": "see ticket",
			"head": {"ref": "feature/retry", "sha": "abc123"}
		}
	}`
	ev, err := Parse("pull_request", "d-1", []byte(body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ev.Repo != "acme/api" || ev.Number != 42 || ev.HeadSHA != "abc123" || ev.HeadRef != "feature/retry" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !ev.IsPR || !ev.Lifecycle() {
		t.Errorf("IsPR = %v, Lifecycle = %v, want both true", ev.IsPR, ev.Lifecycle())
	}
	if ev.Delivery != "d-1" || ev.Sender != "alice" {
		t.Errorf("Delivery = %q, Sender = %q", ev.Delivery, ev.Sender)
	}
}

func TestLifecycleActions(t *testing.T) {
	tests := []struct {
		kind   Kind
		action string
		want   bool
	}{
		{PullRequest, ActionOpened, true},
		{PullRequest, ActionSynchronize, true},
		{PullRequest, ActionReopened, true},
		{PullRequest, "closed", false},
		{PullRequest, "labeled", false},
		{IssueComment, ActionCreated, false},
	}
	for _, tt := range tests {
		ev := Event{Kind: tt.kind, Action: tt.action}
		if got := ev.Lifecycle(); got != tt.want {
			t.Errorf("Lifecycle(%s/%s) = %v, want %v", tt.kind, tt.action, got, tt.want)
		}
	}
}

func TestParseIssueComment(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		isPR   bool
		bot    bool
		author string
	}{
		{
			name: "comment on pull request",
			body: `{"action":"created","repository":{"full_name":"acme/api"},
				"issue":{"number":7,"title":"t","pull_request":{"url":"x"}},
				"comment":{"id":99,"body":"@pr-agent approved","user":{"login":"bob","type":"User"}}}`,
			isPR:   true,
			author: "bob",
		},
		{
			name: "comment on plain issue",
			body: `{"action":"created","repository":{"full_name":"acme/api"},
				"issue":{"number":8,"title":"t"},
				"comment":{"id":100,"body":"@pr-agent list branches","user":{"login":"bob","type":"User"}}}`,
			author: "bob",
		},
		{
			name: "bot comment",
			body: `{"action":"created","repository":{"full_name":"acme/api"},
				"issue":{"number":7,"pull_request":null},
				"comment":{"id":101,"body":"⏳","user":{"login":"prgate[bot]","type":"Bot"}}}`,
			bot:    true,
			author: "prgate[bot]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse("issue_comment", "", []byte(tt.body))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if ev.IsPR != tt.isPR {
				t.Errorf("IsPR = %v, want %v", ev.IsPR, tt.isPR)
			}
			if ev.AuthorIsBot != tt.bot {
				t.Errorf("AuthorIsBot = %v, want %v", ev.AuthorIsBot, tt.bot)
			}
			if ev.CommentAuthor != tt.author {
				t.Errorf("CommentAuthor = %q, want %q", ev.CommentAuthor, tt.author)
			}
			if ev.CommentBody == "" || ev.CommentID == 0 {
				t.Errorf("comment not decoded: %+v", ev)
			}
		})
	}
}

func TestParsePush(t *testing.T) {
	body := `{"ref":"refs/heads/feature-x","after":"def456","repository":{"full_name":"acme/api"},"sender":{"login":"carol"}}`
	ev, err := Parse("push", "", []byte(body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ev.Branch() != "feature-x" {
		t.Errorf("Branch() = %q, want feature-x", ev.Branch())
	}
	if ev.BranchDeleted() {
		t.Error("BranchDeleted() = true for a normal push")
	}

	deleted := Event{Kind: Push, Ref: "refs/heads/gone", After: ZeroSHA}
	if !deleted.BranchDeleted() {
		t.Error("zero sha push should count as deleted")
	}
	tag := Event{Kind: Push, Ref: "refs/tags/v1.0.0"}
	if tag.Branch() != "" {
		t.Errorf("tag Branch() = %q, want empty", tag.Branch())
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("release", "", []byte(`{}`)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("release: err = %v, want ErrUnsupported", err)
	}
	if ev, err := Parse("ping", "", []byte(`not json`)); err != nil || ev.Kind != Ping {
		t.Errorf("ping: ev = %+v, err = %v", ev, err)
	}
	if _, err := Parse("push", "", []byte(`{`)); err == nil {
		t.Error("malformed body: expected error")
	}
	if _, err := Parse("push", "", []byte(`{"ref":"refs/heads/x"}`)); err == nil {
		t.Error("missing repository: expected error")
	}
	if _, err := Parse("pull_request", "", []byte(`{"repository":{"full_name":"a/b"}}`)); err == nil {
		t.Error("missing pull_request: expected error")
	}
}
