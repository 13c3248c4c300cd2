// Package continuation carries workflow context across the pause/resume
// boundary of a risk-gated request.
//
// A paused workflow writes a versioned Record, encoded as URL-safe base64
// JSON, into an HTML comment at the end of the PR comment it posts. A later
// approval or rejection recovers the Record by scanning the thread
// newest-first. Scanning for human-readable labels is kept only as a
// degraded fallback when no token decodes.
package continuation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is written into every new Record.
const SchemaVersion = 1

// AutomaticTriggerRequest is the request text used for analyses started by a
// PR lifecycle event rather than a human command.
const AutomaticTriggerRequest = "Context: Automatic Risk Analysis Trigger (Strict Analysis)"

// automaticTriggerMarker identifies automatic-trigger requests, including
// ones recovered from older tokens.
const automaticTriggerMarker = "Automatic Risk Analysis Trigger"

// UnknownTicket is the ticket id used when nothing could be recovered.
const UnknownTicket = "UNKNOWN"

var (
	// ErrNoRecord means no decodable record was found.
	ErrNoRecord = errors.New("no continuation record")
	// ErrUnsupportedVersion means the token was written by a newer schema.
	ErrUnsupportedVersion = errors.New("unsupported continuation schema version")
)

// Kind tags what resuming a Record should do.
type Kind string

const (
	// KindCodeChange resumes by applying the requested change to a file.
	KindCodeChange Kind = "code_change"
	// KindRiskAcceptance resumes by accepting the PR as-is: reopen and merge.
	KindRiskAcceptance Kind = "risk_acceptance"
)

// Record is the context needed to resume a paused workflow.
type Record struct {
	Version   int    `json:"v"`
	Kind      Kind   `json:"kind"`
	Request   string `json:"request"`
	TicketID  string `json:"ticket"`
	Repo      string `json:"repo"`
	PRNumber  int    `json:"pr"`
	CommitSHA string `json:"sha,omitempty"`
	RiskLevel string `json:"risk,omitempty"`
	Branch    string `json:"branch,omitempty"`
}

// NewRecord builds a current-version record, deriving Kind from the request.
func NewRecord(request, ticketID, repo string, pr int, sha string) Record {
	return Record{
		Version:   SchemaVersion,
		Kind:      KindFor(request),
		Request:   request,
		TicketID:  ticketID,
		Repo:      repo,
		PRNumber:  pr,
		CommitSHA: sha,
	}
}

// KindFor classifies a request as risk acceptance when it came from an
// automatic trigger, and as a code change otherwise.
func KindFor(request string) Kind {
	if IsAutomaticTrigger(request) {
		return KindRiskAcceptance
	}
	return KindCodeChange
}

// IsAutomaticTrigger reports whether request text came from a lifecycle event.
func IsAutomaticTrigger(request string) bool {
	return strings.Contains(request, automaticTriggerMarker)
}

// Encode serializes r into a URL-safe token.
func Encode(r Record) (string, error) {
	if r.Version == 0 {
		r.Version = SchemaVersion
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal continuation record: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode parses a token written by Encode. Unversioned tokens from the
// first release (request/jira_ticket_id/repo_full_name keys) are upgraded.
func Decode(token string) (Record, error) {
	data, err := decodeBase64(strings.TrimSpace(token))
	if err != nil {
		return Record{}, fmt.Errorf("invalid token encoding: %w", err)
	}

	var probe struct {
		Version *int `json:"v"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Record{}, fmt.Errorf("invalid token payload: %w", err)
	}
	if probe.Version == nil {
		return decodeLegacy(data)
	}
	if *probe.Version > SchemaVersion || *probe.Version < 1 {
		return Record{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *probe.Version)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("invalid token payload: %w", err)
	}
	if r.Kind == "" {
		r.Kind = KindFor(r.Request)
	}
	return r, nil
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// legacyRecord is the unversioned layout. pr_number was written as a string.
type legacyRecord struct {
	Request   string          `json:"request"`
	TicketID  string          `json:"jira_ticket_id"`
	Repo      string          `json:"repo_full_name"`
	PRNumber  json.RawMessage `json:"pr_number"`
	CommitSHA *string         `json:"commit_sha"`
}

func decodeLegacy(data []byte) (Record, error) {
	var l legacyRecord
	if err := json.Unmarshal(data, &l); err != nil {
		return Record{}, fmt.Errorf("invalid legacy token payload: %w", err)
	}
	if l.Request == "" && l.TicketID == "" {
		return Record{}, fmt.Errorf("invalid legacy token payload: no request or ticket")
	}
	pr, err := parseFlexibleInt(l.PRNumber)
	if err != nil {
		return Record{}, fmt.Errorf("invalid legacy pr_number: %w", err)
	}
	r := NewRecord(l.Request, l.TicketID, l.Repo, pr, "")
	if l.CommitSHA != nil {
		r.CommitSHA = *l.CommitSHA
	}
	return r, nil
}

// parseFlexibleInt accepts 7, "7" and "7.0".
func parseFlexibleInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	s := string(raw)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
