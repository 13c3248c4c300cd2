package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prgate/prgate/internal/intent"
)

// LinkClaims are signed into an approval link.
type LinkClaims struct {
	Decision intent.Decision `json:"decision"`
	Repo     string          `json:"repo"`
	PRNumber int             `json:"pr"`
	Expiry   time.Time       `json:"exp"`
}

// GenerateLinkToken creates an HMAC-signed token for an approval link.
//
// Token format: base64(json(claims)).base64(hmac-sha256(claims))
func GenerateLinkToken(claims LinkClaims, secret []byte) (string, error) {
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal link claims: %w", err)
	}

	h := hmac.New(sha256.New, secret)
	h.Write(claimsJSON)
	signature := h.Sum(nil)

	return base64.URLEncoding.EncodeToString(claimsJSON) + "." + base64.URLEncoding.EncodeToString(signature), nil
}

// ValidateLinkToken verifies the signature and expiry of a link token and
// returns its claims.
func ValidateLinkToken(token string, secret []byte, now time.Time) (*LinkClaims, error) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return nil, fmt.Errorf("invalid token format")
	}
	claimsB64, sigB64 := token[:i], token[i+1:]

	claimsJSON, err := base64.URLEncoding.DecodeString(claimsB64)
	if err != nil {
		return nil, fmt.Errorf("invalid token encoding: %w", err)
	}
	signature, err := base64.URLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}

	h := hmac.New(sha256.New, secret)
	h.Write(claimsJSON)
	if !hmac.Equal(signature, h.Sum(nil)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	var claims LinkClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	if now.After(claims.Expiry) {
		return nil, fmt.Errorf("token expired at %s", claims.Expiry.Format(time.RFC3339))
	}
	return &claims, nil
}

// Links builds approval links for notifications. It implements
// workflow.LinkBuilder.
type Links struct {
	BaseURL string
	Secret  []byte
	TTL     time.Duration
	Now     func() time.Time
}

// DefaultLinkTTL is how long an approval link stays valid.
const DefaultLinkTTL = 7 * 24 * time.Hour

func (l Links) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// DecisionURL returns <base>/approvals?decision=..&repo=..&pr_num=..[&sig=..].
// It returns "" when no base URL is configured.
func (l Links) DecisionURL(decision intent.Decision, repo string, number int) string {
	if l.BaseURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("decision", string(decision))
	q.Set("repo", repo)
	q.Set("pr_num", strconv.Itoa(number))
	if len(l.Secret) > 0 {
		ttl := l.TTL
		if ttl <= 0 {
			ttl = DefaultLinkTTL
		}
		sig, err := GenerateLinkToken(LinkClaims{
			Decision: decision,
			Repo:     repo,
			PRNumber: number,
			Expiry:   l.now().Add(ttl).UTC(),
		}, l.Secret)
		if err != nil {
			return ""
		}
		q.Set("sig", sig)
	}
	return strings.TrimRight(l.BaseURL, "/") + "/approvals?" + q.Encode()
}

// Verify checks that sig covers exactly the decision, repo and PR in the
// link. Without a secret every link is accepted.
func (l Links) Verify(decision intent.Decision, repo string, number int, sig string) error {
	if len(l.Secret) == 0 {
		return nil
	}
	if sig == "" {
		return fmt.Errorf("missing signature")
	}
	claims, err := ValidateLinkToken(sig, l.Secret, l.now())
	if err != nil {
		return err
	}
	if claims.Decision != decision || claims.Repo != repo || claims.PRNumber != number {
		return fmt.Errorf("signature does not match this link")
	}
	return nil
}

// ParseDecision accepts "approved"/"approve" and "rejected"/"reject" in
// any case.
func ParseDecision(s string) (intent.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "approve":
		return intent.Approved, true
	case "rejected", "reject":
		return intent.Rejected, true
	}
	return intent.NoDecision, false
}

// VerifySignature checks a GitHub X-Hub-Signature-256 header against body.
func VerifySignature(secret, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hmac.Equal(got, h.Sum(nil))
}
