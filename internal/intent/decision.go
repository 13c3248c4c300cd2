package intent

import "strings"

// Decision is a human verdict on a paused workflow.
type Decision string

const (
	NoDecision Decision = ""
	Approved   Decision = "approved"
	Rejected   Decision = "rejected"
)

// DefaultMention is the handle that addresses the agent in a comment.
const DefaultMention = "@pr-agent"

// HasMention reports whether text addresses the agent.
func HasMention(text, mention string) bool {
	if mention == "" {
		mention = DefaultMention
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(mention))
}

// DetectDecision looks for "approved" or "rejected" in text. "approved" is
// checked first.
//
// In lenient mode any occurrence counts, so "I never approved of this"
// resumes the workflow. In strict mode the token must be the whole message
// once the mention is removed, or its first or last word.
func DetectDecision(text, mention string, strict bool) Decision {
	lower := strings.ToLower(text)
	if !strict {
		switch {
		case strings.Contains(lower, string(Approved)):
			return Approved
		case strings.Contains(lower, string(Rejected)):
			return Rejected
		}
		return NoDecision
	}

	if mention == "" {
		mention = DefaultMention
	}
	lower = strings.ReplaceAll(lower, strings.ToLower(mention), " ")
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ',' || r == '.' || r == '!' || r == ':'
	})
	if len(words) == 0 {
		return NoDecision
	}
	for _, d := range []Decision{Approved, Rejected} {
		if words[0] == string(d) || words[len(words)-1] == string(d) {
			return d
		}
	}
	return NoDecision
}
