package risk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		text string
		want Level
	}{
		{"RISK LEVEL: HIGH\nREASONING: schema change", High},
		{"**RISK LEVEL:** MEDIUM", Medium},
		{"**Risk Level**: low", Low},
		{"risk level - high, see OUTAGE-2024-06", High},
		{"I could not decide.", Low},
		{"", Low},
		{"RISK LEVEL: LOW\n...\nRISK LEVEL: HIGH", Low},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.text); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestLevelGated(t *testing.T) {
	if Low.Gated() {
		t.Error("LOW should not be gated")
	}
	if !Medium.Gated() || !High.Gated() {
		t.Error("MEDIUM and HIGH should be gated")
	}
	if Level("SEVERE").Valid() {
		t.Error("unknown level reported valid")
	}
}

func TestLoadKnowledgeBase(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IncidentHistoryFile), []byte("OUTAGE-2024-06: user_id migration"), 0o600); err != nil {
		t.Fatal(err)
	}

	kb, err := LoadKnowledgeBase(dir)
	if err != nil {
		t.Fatalf("LoadKnowledgeBase failed: %v", err)
	}
	if kb.IncidentHistory() != "OUTAGE-2024-06: user_id migration" {
		t.Errorf("IncidentHistory = %q", kb.IncidentHistory())
	}
	if want := "# architecture_map.txt not available"; kb.ArchitectureMap() != want {
		t.Errorf("ArchitectureMap = %q, want %q", kb.ArchitectureMap(), want)
	}
	if len(kb.Rules()) != len(DefaultRules) {
		t.Errorf("Rules = %v, want defaults", kb.Rules())
	}
}

func TestLoadKnowledgeBase_Manifest(t *testing.T) {
	dir := t.TempDir()
	manifest := "files:\n  architecture_map: services.md\nrules:\n  - Payment changes = HIGH RISK\n"
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "services.md"), []byte("payments -> ledger"), 0o600); err != nil {
		t.Fatal(err)
	}

	kb, err := LoadKnowledgeBase(dir)
	if err != nil {
		t.Fatalf("LoadKnowledgeBase failed: %v", err)
	}
	if kb.ArchitectureMap() != "payments -> ledger" {
		t.Errorf("ArchitectureMap = %q", kb.ArchitectureMap())
	}
	if len(kb.Rules()) != 1 || kb.Rules()[0] != "Payment changes = HIGH RISK" {
		t.Errorf("Rules = %v", kb.Rules())
	}
}

func TestLoadKnowledgeBase_BadManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte("files: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKnowledgeBase(dir); err == nil {
		t.Error("expected error for malformed manifest")
	}
}

func TestRenderAnalysisPrompt(t *testing.T) {
	kb := NewKnowledgeBase("ARCH", "INCIDENTS", "POLICY", []string{"rule one"})
	diff := strings.Repeat("a", 6000)

	prompt, err := RenderAnalysisPrompt(kb, Request{Repo: "acme/api", PRNumber: 7, Diff: diff, Text: "update x.py"}, 5000)
	if err != nil {
		t.Fatalf("RenderAnalysisPrompt failed: %v", err)
	}
	for _, want := range []string{"PULL REQUEST #7 in acme/api", "User Request: update x.py", "ARCH", "INCIDENTS", "POLICY", "- rule one", "RISK LEVEL: [LOW/MEDIUM/HIGH]"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, strings.Repeat("a", 5001)) {
		t.Error("diff was not truncated to the limit")
	}

	empty, err := RenderAnalysisPrompt(kb, Request{Repo: "acme/api", PRNumber: 7}, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(empty, NoDiff) {
		t.Error("missing diff should render the placeholder")
	}
}

func TestTruncate_UTF8(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	got := Truncate(s, 5)
	if !utf8.ValidString(got) {
		t.Fatalf("Truncate produced invalid UTF-8: %q", got)
	}
	if got != "éé" {
		t.Errorf("Truncate = %q, want %q", got, "éé")
	}
	if Truncate("abc", 0) != "abc" {
		t.Error("non-positive limit should disable truncation")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```python\nprint('hi')\n```", "print('hi')"},
		{"```\nx = 1\n```\n", "x = 1"},
		{"plain\ncontent", "plain\ncontent"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type stubBackend struct {
	reply  string
	err    error
	delay  time.Duration
	prompt string
}

func (s *stubBackend) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func TestAnalyzer_Assess(t *testing.T) {
	kb := NewKnowledgeBase("", "", "", nil)
	backend := &stubBackend{reply: "**RISK LEVEL:** HIGH\nREASONING: touches user_id"}
	a := NewAnalyzer(backend, kb, Config{}, nil)

	as := a.Assess(context.Background(), Request{Repo: "acme/api", PRNumber: 7, Text: "update schema"})
	if as.Level != High || as.Degraded {
		t.Errorf("Assess = %+v, want HIGH non-degraded", as)
	}
	if !strings.Contains(backend.prompt, "update schema") {
		t.Error("prompt did not include request text")
	}
}

func TestAnalyzer_AssessTimeoutDegrades(t *testing.T) {
	backend := &stubBackend{reply: "RISK LEVEL: LOW", delay: time.Second}
	a := NewAnalyzer(backend, NewKnowledgeBase("", "", "", nil), Config{Timeout: 10 * time.Millisecond}, nil)

	as := a.Assess(context.Background(), Request{Repo: "acme/api", PRNumber: 7})
	if !as.Degraded || as.Level != Medium {
		t.Fatalf("Assess = %+v, want degraded MEDIUM", as)
	}
	if as.Analysis != FallbackAnalysis {
		t.Errorf("Analysis = %q, want fallback text", as.Analysis)
	}
	if !errors.Is(as.Cause, ErrBackendUnavailable) || !errors.Is(as.Cause, context.DeadlineExceeded) {
		t.Errorf("Cause = %v, want ErrBackendUnavailable wrapping DeadlineExceeded", as.Cause)
	}
}

func TestAnalyzer_NoBackend(t *testing.T) {
	a := NewAnalyzer(nil, NewKnowledgeBase("", "", "", nil), Config{}, nil)
	if as := a.Assess(context.Background(), Request{}); !as.Degraded {
		t.Error("missing backend should degrade")
	}
	if _, err := a.Transform(context.Background(), "r", "p", "c"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Transform error = %v, want ErrBackendUnavailable", err)
	}
}

func TestAnalyzer_Transform(t *testing.T) {
	backend := &stubBackend{reply: "```go\npackage x\n```"}
	a := NewAnalyzer(backend, NewKnowledgeBase("", "", "", nil), Config{}, nil)

	out, err := a.Transform(context.Background(), "add package clause", "x.go", "")
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if out != "package x" {
		t.Errorf("Transform = %q, want %q", out, "package x")
	}
	if !strings.Contains(backend.prompt, "output ONLY the full new content") {
		t.Error("transform prompt missing output contract")
	}
}
