package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prgate/prgate/internal/executor"
)

func TestNewClientTrimsURL(t *testing.T) {
	c := NewClient("https://acme.atlassian.net/", "bot@acme.io", "tok")
	if c.URL != "https://acme.atlassian.net" {
		t.Errorf("URL = %q", c.URL)
	}
	if !c.Configured() {
		t.Error("client with URL and token should be configured")
	}
	var nilClient *Client
	if nilClient.Configured() {
		t.Error("nil client should not be configured")
	}
	if got := c.BrowseURL("SCRUM-7"); got != "https://acme.atlassian.net/browse/SCRUM-7" {
		t.Errorf("BrowseURL = %q", got)
	}
}

func TestSetAuth(t *testing.T) {
	tests := []struct {
		name     string
		username string
		prefix   string
	}{
		{"cloud basic auth", "bot@acme.io", "Basic "},
		{"data center bearer", "", "Bearer tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("https://jira.acme.io", tt.username, "tok")
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			c.setAuth(req)
			if got := req.Header.Get("Authorization"); !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("Authorization = %q, want prefix %q", got, tt.prefix)
			}
		})
	}
}

func TestCreateIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/api/3/issue" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Fields map[string]json.RawMessage `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(body.Fields["summary"]) != `"[HIGH] Audit: acme/api - PR #7"` {
			t.Errorf("summary = %s", body.Fields["summary"])
		}
		if !strings.Contains(string(body.Fields["labels"]), "risk-high") {
			t.Errorf("labels = %s", body.Fields["labels"])
		}
		if !strings.Contains(string(body.Fields["description"]), `"type":"doc"`) {
			t.Errorf("description is not ADF: %s", body.Fields["description"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10001","key":"SCRUM-88","self":"x"}`))
	}))
	defer server.Close()

	tk := NewTicketer(NewClient(server.URL, "", "tok"), "SCRUM", "", slog.New(slog.DiscardHandler))
	id, err := tk.CreateTicket(context.Background(), executor.TicketFields{
		Repo: "acme/api", PRNumber: 7, Level: "HIGH", Analysis: "RISK LEVEL: HIGH\nTouches auth.",
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if id != "SCRUM-88" {
		t.Errorf("id = %q, want SCRUM-88", id)
	}
}

func TestCreateTicketFallsBackToLocalID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorMessages":["project does not exist"]}`))
	}))
	defer server.Close()

	fixed := time.Unix(1700000612, 0)
	for _, client := range []*Client{nil, NewClient("", "", ""), NewClient(server.URL, "", "tok")} {
		tk := NewTicketer(client, "", "", slog.New(slog.DiscardHandler))
		tk.Now = func() time.Time { return fixed }
		id, err := tk.CreateTicket(context.Background(), executor.TicketFields{Repo: "acme/api", PRNumber: 7, Level: "MEDIUM"})
		if err != nil {
			t.Fatalf("CreateTicket should not fail: %v", err)
		}
		if id != "SCRUM-612" {
			t.Errorf("id = %q, want SCRUM-612", id)
		}
	}
}

func TestCommentAndLabel(t *testing.T) {
	var gotComment, gotLabels string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue/SCRUM-5/comment":
			gotComment = string(body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"1"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/rest/api/3/issue/SCRUM-5":
			gotLabels = string(body)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	tk := NewTicketer(NewClient(server.URL, "bot@acme.io", "tok"), "SCRUM", "Task", nil)
	ctx := context.Background()
	if err := tk.CommentTicket(ctx, "SCRUM-5", "✅ **Approved by alice:** Risk accepted. PR unblocked."); err != nil {
		t.Fatalf("CommentTicket failed: %v", err)
	}
	if !strings.Contains(gotComment, "Risk accepted") {
		t.Errorf("comment body = %s", gotComment)
	}
	if err := tk.LabelTicket(ctx, "SCRUM-5", []string{"approved"}); err != nil {
		t.Fatalf("LabelTicket failed: %v", err)
	}
	if !strings.Contains(gotLabels, `{"add":"approved"}`) || !strings.Contains(gotLabels, `{"remove":"pending-approval"}`) {
		t.Errorf("label update = %s", gotLabels)
	}
}

func TestDoRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorMessages":["Issue does not exist"]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "tok")
	_, err := c.GetIssue(context.Background(), "SCRUM-404")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want *APIError 404", err)
	}

	if err := NewClient("", "", "tok").AddComment(context.Background(), "X-1", "hi"); err == nil {
		t.Error("expected error without URL")
	}
}

func TestPlainTextToADF(t *testing.T) {
	if PlainTextToADF("") != nil {
		t.Error("empty text should produce nil")
	}
	raw := PlainTextToADF("line one\n\nline three")
	var doc struct {
		Type    string            `json:"type"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Type != "doc" || len(doc.Content) != 3 {
		t.Errorf("doc = %s", raw)
	}
	if got := DescriptionToPlainText(raw); got != "line one\n\nline three" {
		t.Errorf("DescriptionToPlainText round trip = %q", got)
	}
}

func TestDescriptionToPlainText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"null", "null", ""},
		{"plain string", `"just text"`, "just text"},
		{"non-doc object", `{"type":"other"}`, `{"type":"other"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DescriptionToPlainText(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
