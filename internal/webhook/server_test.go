package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prgate/prgate/internal/event"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/workflow"
)

type decideCall struct {
	decision intent.Decision
	dec      workflow.Decision
}

type fakeGateway struct {
	mu         sync.Mutex
	dispatched []event.Event
	decided    []decideCall
	result     workflow.Result
}

func (f *fakeGateway) Dispatch(_ context.Context, ev event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, ev)
}

func (f *fakeGateway) Decide(_ context.Context, d intent.Decision, dec workflow.Decision) workflow.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decided = append(f.decided, decideCall{decision: d, dec: dec})
	return f.result
}

func setupTestServer(t *testing.T, cfg ServerConfig) (*Server, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{result: workflow.Result{State: workflow.Executed}}
	cfg.Gateway = gw
	return NewServer(cfg), gw
}

const prOpened = `{
  "action": "opened",
  "repository": {"full_name": "acme/api"},
  "sender": {"login": "dev", "type": "User"},
  "pull_request": {"number": 7, "title": "Add retries", "head": {"ref": "feature/x", "sha": "abc123"}}
}`

func postDelivery(t *testing.T, h http.Handler, kind, body string, headers map[string]string) (*httptest.ResponseRecorder, AckResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", kind)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var ack AckResponse
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return w, ack
}

func TestHandleGitHubAccepted(t *testing.T) {
	server, gw := setupTestServer(t, ServerConfig{})

	w, ack := postDelivery(t, server.Handler(), "pull_request", prOpened,
		map[string]string{"X-GitHub-Delivery": "d-1"})
	if w.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", w.Code)
	}
	if ack.Status != "accepted" || ack.Delivery != "d-1" {
		t.Errorf("unexpected ack %+v", ack)
	}
	if len(gw.dispatched) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(gw.dispatched))
	}
	ev := gw.dispatched[0]
	if ev.Repo != "acme/api" || ev.Number != 7 || ev.HeadSHA != "abc123" || ev.Delivery != "d-1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestHandleGitHubGeneratesDeliveryID(t *testing.T) {
	server, _ := setupTestServer(t, ServerConfig{})
	_, ack := postDelivery(t, server.Handler(), "pull_request", prOpened, nil)
	if ack.Delivery == "" {
		t.Error("expected a generated delivery id")
	}
}

func TestHandleGitHubIgnored(t *testing.T) {
	tests := []struct {
		name string
		kind string
		body string
	}{
		{"ping", "ping", `{"zen":"hi"}`},
		{"unsupported event", "deployment", `{}`},
		{"malformed json", "pull_request", `{not json`},
		{"missing repository", "pull_request", `{"action":"opened"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, gw := setupTestServer(t, ServerConfig{})
			w, ack := postDelivery(t, server.Handler(), tt.kind, tt.body, nil)
			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
			if ack.Status != "ignored" {
				t.Errorf("expected ignored, got %+v", ack)
			}
			if len(gw.dispatched) != 0 {
				t.Errorf("expected no dispatch, got %d", len(gw.dispatched))
			}
		})
	}
}

func TestHandleGitHubSignature(t *testing.T) {
	secret := []byte("hook-secret")
	server, gw := setupTestServer(t, ServerConfig{Secret: secret})

	w, ack := postDelivery(t, server.Handler(), "pull_request", prOpened,
		map[string]string{"X-Hub-Signature-256": sign([]byte("wrong"), []byte(prOpened))})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if ack.Error == "" {
		t.Error("expected error message")
	}

	w, _ = postDelivery(t, server.Handler(), "pull_request", prOpened, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: expected status 401, got %d", w.Code)
	}

	w, _ = postDelivery(t, server.Handler(), "pull_request", prOpened,
		map[string]string{"X-Hub-Signature-256": sign(secret, []byte(prOpened))})
	if w.Code != http.StatusAccepted {
		t.Errorf("valid signature: expected status 202, got %d", w.Code)
	}
	if len(gw.dispatched) != 1 {
		t.Errorf("expected 1 dispatch, got %d", len(gw.dispatched))
	}
}

func TestHandleGitHubBodyLimit(t *testing.T) {
	server, gw := setupTestServer(t, ServerConfig{MaxBodyBytes: 64})
	w, ack := postDelivery(t, server.Handler(), "pull_request", prOpened, nil)
	if w.Code != http.StatusOK || ack.Status != "ignored" {
		t.Errorf("oversized body: got %d %+v", w.Code, ack)
	}
	if len(gw.dispatched) != 0 {
		t.Error("oversized body was dispatched")
	}
}

func TestHandleGitHubWrongMethod(t *testing.T) {
	server, _ := setupTestServer(t, ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/webhook/github", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func getApproval(t *testing.T, h http.Handler, q url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/approvals?"+q.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postApproval(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/approvals", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleApprovalLinkOnlyConfirms(t *testing.T) {
	server, gw := setupTestServer(t, ServerConfig{})

	w := getApproval(t, server.Handler(), url.Values{
		"decision": {"approved"},
		"repo":     {"acme/api"},
		"pr_num":   {"7"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{`<form method="post" action="approvals">`, `name="pr_num" value="7"`, "Confirm: approved"} {
		if !strings.Contains(body, want) {
			t.Errorf("confirmation page missing %q: %s", want, body)
		}
	}
	if len(gw.decided) != 0 {
		t.Errorf("GET recorded %d decision(s)", len(gw.decided))
	}
}

func TestHandleApprovalUnsigned(t *testing.T) {
	server, gw := setupTestServer(t, ServerConfig{})

	w := postApproval(t, server.Handler(), url.Values{
		"decision": {"approved"},
		"repo":     {"acme/api"},
		"pr_num":   {"7"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Decision recorded") || !strings.Contains(body, string(workflow.Executed)) {
		t.Errorf("unexpected page: %s", body)
	}

	if len(gw.decided) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(gw.decided))
	}
	call := gw.decided[0]
	if call.decision != intent.Approved {
		t.Errorf("expected approved, got %q", call.decision)
	}
	if call.dec.Repo != "acme/api" || call.dec.PRNumber != 7 || call.dec.Actor != "email-link" {
		t.Errorf("unexpected decision %+v", call.dec)
	}
	if call.dec.Message != "approved by email-link" {
		t.Errorf("unexpected message %q", call.dec.Message)
	}
}

func TestHandleApprovalSigned(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	links := Links{
		BaseURL: "https://gate.example",
		Secret:  []byte("link-secret"),
		Now:     func() time.Time { return now },
	}
	server, gw := setupTestServer(t, ServerConfig{Links: links})

	u, err := url.Parse(links.DecisionURL(intent.Rejected, "acme/api", 7))
	if err != nil {
		t.Fatal(err)
	}
	w := getApproval(t, server.Handler(), u.Query())
	if w.Code != http.StatusOK {
		t.Fatalf("signed link: expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `name="sig" value="`+u.Query().Get("sig")+`"`) {
		t.Errorf("confirmation form does not carry the signature: %s", w.Body.String())
	}
	if len(gw.decided) != 0 {
		t.Fatalf("GET recorded %d decision(s)", len(gw.decided))
	}

	if w := postApproval(t, server.Handler(), u.Query()); w.Code != http.StatusOK {
		t.Fatalf("signed form: expected status 200, got %d", w.Code)
	}
	if len(gw.decided) != 1 || gw.decided[0].decision != intent.Rejected {
		t.Fatalf("unexpected decisions %+v", gw.decided)
	}

	forged := u.Query()
	forged.Set("decision", "approved")
	if w := getApproval(t, server.Handler(), forged); w.Code != http.StatusForbidden {
		t.Errorf("forged link: expected status 403, got %d", w.Code)
	}
	if w := postApproval(t, server.Handler(), forged); w.Code != http.StatusForbidden {
		t.Errorf("forged form: expected status 403, got %d", w.Code)
	}
	unsigned := u.Query()
	unsigned.Del("sig")
	if w := postApproval(t, server.Handler(), unsigned); w.Code != http.StatusForbidden {
		t.Errorf("unsigned form: expected status 403, got %d", w.Code)
	}
	if len(gw.decided) != 1 {
		t.Errorf("rejected links reached the gateway: %d calls", len(gw.decided))
	}
}

func TestHandleApprovalBadRequest(t *testing.T) {
	tests := []struct {
		name string
		q    url.Values
	}{
		{"missing decision", url.Values{"repo": {"acme/api"}, "pr_num": {"7"}}},
		{"unknown decision", url.Values{"decision": {"maybe"}, "repo": {"acme/api"}, "pr_num": {"7"}}},
		{"missing repo", url.Values{"decision": {"approved"}, "pr_num": {"7"}}},
		{"bad number", url.Values{"decision": {"approved"}, "repo": {"acme/api"}, "pr_num": {"seven"}}},
		{"zero number", url.Values{"decision": {"approved"}, "repo": {"acme/api"}, "pr_num": {"0"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, gw := setupTestServer(t, ServerConfig{})
			if w := getApproval(t, server.Handler(), tt.q); w.Code != http.StatusBadRequest {
				t.Errorf("GET: expected status 400, got %d", w.Code)
			}
			if w := postApproval(t, server.Handler(), tt.q); w.Code != http.StatusBadRequest {
				t.Errorf("POST: expected status 400, got %d", w.Code)
			}
			if len(gw.decided) != 0 {
				t.Error("invalid link reached the gateway")
			}
		})
	}
}

func TestHandleApprovalOutcomes(t *testing.T) {
	form := url.Values{"decision": {"approved"}, "repo": {"acme/api"}, "pr_num": {"7"}}

	server, gw := setupTestServer(t, ServerConfig{})
	gw.result = workflow.Result{State: workflow.Executed, Duplicate: true}
	if body := postApproval(t, server.Handler(), form).Body.String(); !strings.Contains(body, "already processed") {
		t.Errorf("duplicate page: %s", body)
	}

	gw.result = workflow.Result{State: workflow.PausedForApproval, Failure: "File `x.py` not found on branch `main`"}
	body := postApproval(t, server.Handler(), form).Body.String()
	if !strings.Contains(body, "could not be completed") {
		t.Errorf("failure page: %s", body)
	}
	if !strings.Contains(body, "x.py") || strings.Contains(body, "<script") {
		t.Errorf("failure page should show the escaped reason: %s", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t, ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	server, _ := setupTestServer(t, ServerConfig{})
	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
