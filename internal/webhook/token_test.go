package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prgate/prgate/internal/intent"
)

func TestGenerateAndValidateLinkToken(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	claims := LinkClaims{
		Decision: intent.Approved,
		Repo:     "acme/api",
		PRNumber: 7,
		Expiry:   now.Add(time.Hour),
	}

	token, err := GenerateLinkToken(claims, secret)
	if err != nil {
		t.Fatalf("GenerateLinkToken failed: %v", err)
	}
	if !strings.Contains(token, ".") {
		t.Errorf("expected token with separator, got %q", token)
	}

	got, err := ValidateLinkToken(token, secret, now)
	if err != nil {
		t.Fatalf("ValidateLinkToken failed: %v", err)
	}
	if got.Decision != intent.Approved || got.Repo != "acme/api" || got.PRNumber != 7 {
		t.Errorf("unexpected claims: %+v", got)
	}
}

func TestValidateLinkTokenFailures(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	valid, err := GenerateLinkToken(LinkClaims{
		Decision: intent.Rejected,
		Repo:     "acme/api",
		PRNumber: 7,
		Expiry:   now.Add(time.Hour),
	}, secret)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		token  string
		secret []byte
		now    time.Time
	}{
		{"wrong secret", valid, []byte("other"), now},
		{"expired", valid, secret, now.Add(2 * time.Hour)},
		{"no separator", "abcdef", secret, now},
		{"empty signature", "abc.", secret, now},
		{"bad encoding", "!!!.???", secret, now},
		{"tampered", "x" + valid, secret, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateLinkToken(tt.token, tt.secret, tt.now); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLinksDecisionURL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	links := Links{
		BaseURL: "https://gate.example/",
		Secret:  []byte("s3cret"),
		Now:     func() time.Time { return now },
	}

	raw := links.DecisionURL(intent.Approved, "acme/api", 7)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Host != "gate.example" || u.Path != "/approvals" {
		t.Errorf("unexpected URL %q", raw)
	}
	q := u.Query()
	if q.Get("decision") != "approved" || q.Get("repo") != "acme/api" || q.Get("pr_num") != "7" {
		t.Errorf("unexpected query %v", q)
	}
	if err := links.Verify(intent.Approved, "acme/api", 7, q.Get("sig")); err != nil {
		t.Errorf("Verify own link: %v", err)
	}
	if err := links.Verify(intent.Rejected, "acme/api", 7, q.Get("sig")); err == nil {
		t.Error("signature for approve accepted a reject")
	}
	if err := links.Verify(intent.Approved, "acme/api", 8, q.Get("sig")); err == nil {
		t.Error("signature accepted a different PR")
	}
	if err := links.Verify(intent.Approved, "acme/api", 7, ""); err == nil {
		t.Error("missing signature accepted")
	}

	later := links
	later.Now = func() time.Time { return now.Add(DefaultLinkTTL + time.Minute) }
	if err := later.Verify(intent.Approved, "acme/api", 7, q.Get("sig")); err == nil {
		t.Error("expired link accepted")
	}
}

func TestLinksWithoutSecretOrBase(t *testing.T) {
	if got := (Links{}).DecisionURL(intent.Approved, "acme/api", 1); got != "" {
		t.Errorf("expected empty URL without base, got %q", got)
	}

	open := Links{BaseURL: "http://localhost:8080"}
	raw := open.DecisionURL(intent.Rejected, "acme/api", 3)
	if strings.Contains(raw, "sig=") {
		t.Errorf("unsigned link carries a signature: %q", raw)
	}
	if err := open.Verify(intent.Rejected, "acme/api", 3, ""); err != nil {
		t.Errorf("unsigned verify: %v", err)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want intent.Decision
		ok   bool
	}{
		{"approved", intent.Approved, true},
		{"Approve", intent.Approved, true},
		{" REJECTED ", intent.Rejected, true},
		{"reject", intent.Rejected, true},
		{"maybe", intent.NoDecision, false},
		{"", intent.NoDecision, false},
	}
	for _, tt := range tests {
		got, ok := ParseDecision(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDecision(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func sign(secret, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("hook-secret")
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	if !VerifySignature(secret, body, sign(secret, body)) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(secret, body, sign([]byte("other"), body)) {
		t.Error("signature with wrong secret accepted")
	}
	if VerifySignature(secret, body, "sha1=abcdef") {
		t.Error("sha1 header accepted")
	}
	if VerifySignature(secret, body, "sha256=zz") {
		t.Error("non-hex signature accepted")
	}
}
