package continuation

import (
	"fmt"
	"regexp"
	"strings"
)

// Comment markers. Paused-analysis comments carry AnalysisMarker (or
// FallbackMarker when the backend was unavailable). Outcome comments carry
// one of the terminal markers so a repeated decision can be recognised.
const (
	AnalysisMarker     = "AI Risk Analysis"
	FallbackMarker     = "Fallback Mode"
	ExecutedMarker     = "Approved & Executed"
	RejectedMarker     = "Request Rejected"
	RiskAcceptedMarker = "Risk Accepted"
	TicketLabel        = "Jira Ticket"

	// AgentSignature is appended to every comment the agent posts. GitHub
	// does not render it.
	AgentSignature = "<!-- prgate:agent -->"
)

var (
	annotationPattern       = regexp.MustCompile(`<!--\s*params:\s*([a-zA-Z0-9\-_=]+)\s*-->`)
	legacyAnnotationPattern = regexp.MustCompile(`\[params\]:\s*([a-zA-Z0-9\-_=]+)`)
	inlineTokenPattern      = regexp.MustCompile(`(?i)params:\s*([a-zA-Z0-9\-_=]+)`)
	inlineContextPattern    = regexp.MustCompile(`(?i)Context:\s*(.+)`)
	// Tolerates markdown emphasis between label and value: "**Jira Ticket:** SCRUM-7".
	ticketLabelPattern = regexp.MustCompile(`(?:Jira Ticket|Governance Ticket)\W+([A-Z][A-Z0-9]*-\d+)`)
)

// Annotate appends token to body as an HTML comment, which GitHub keeps in
// the raw source but does not render.
func Annotate(body, token string) string {
	return fmt.Sprintf("%s\n\n<!-- params: %s -->\n", strings.TrimRight(body, "\n"), token)
}

// Sign marks body as posted by the agent. Signing twice is a no-op.
func Sign(body string) string {
	if IsAgentComment(body) {
		return body
	}
	return strings.TrimRight(body, "\n") + "\n\n" + AgentSignature + "\n"
}

// IsAgentComment reports whether body carries AgentSignature.
func IsAgentComment(body string) bool {
	return strings.Contains(body, AgentSignature)
}

// Quote neutralises @-mentions in text echoed into a comment, so the echo
// neither pings anyone nor addresses the agent.
func Quote(text string) string {
	return strings.ReplaceAll(text, "@", "@\u200b")
}

// TicketLine renders the human-readable ticket label.
func TicketLine(ticketID string) string {
	return fmt.Sprintf("**%s:** %s", TicketLabel, ticketID)
}

// ExtractToken returns the annotated token in body, trying the current
// HTML-comment form first and the link-reference form second.
func ExtractToken(body string) (string, bool) {
	if m := annotationPattern.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	if m := legacyAnnotationPattern.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractTicket returns the ticket id from a "Jira Ticket: X" label.
func ExtractTicket(body string) (string, bool) {
	if m := ticketLabelPattern.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	return "", false
}

// InlineToken returns a "Params: TOKEN" token carried in a decision message.
func InlineToken(message string) (string, bool) {
	if m := inlineTokenPattern.FindStringSubmatch(message); m != nil {
		return m[1], true
	}
	return "", false
}

// InlineContext returns the text after "Context:" in a decision message.
func InlineContext(message string) (string, bool) {
	m := inlineContextPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	ctx := strings.TrimSpace(m[1])
	return ctx, ctx != ""
}

// IsAnalysis reports whether a comment body is a paused-analysis comment.
func IsAnalysis(body string) bool {
	return strings.Contains(body, AnalysisMarker) || strings.Contains(body, FallbackMarker)
}

// IsTerminal reports whether a comment body records a final outcome: it
// opens with one of the outcome headers ("✅ **Approved & Executed**",
// "❌ **Request Rejected**", "✅ **Risk Accepted**"). A marker quoted later
// in a human comment does not count.
func IsTerminal(body string) bool {
	body = strings.TrimSpace(body)
	for _, h := range outcomeHeaders {
		if strings.HasPrefix(body, h) {
			return true
		}
	}
	return false
}

var outcomeHeaders = []string{
	"✅ **" + ExecutedMarker + "**",
	"❌ **" + RejectedMarker + "**",
	"✅ **" + RiskAcceptedMarker + "**",
}
