package intent

import (
	"regexp"
	"strings"
)

var (
	createNamePattern   = regexp.MustCompile(`(?i)create(?:\s+a)?(?:\s+branch)?(?:\s+named)?\s+([a-zA-Z0-9\-_]+)`)
	createSuffixPattern = regexp.MustCompile(`(?i)create\s+([a-zA-Z0-9\-_]+)\s+branch`)
	deleteStopwords     = regexp.MustCompile(`(?i)\b(?:pr-agent|delete|remove|branch|branches|the)\b`)
)

// DeleteSentinel is returned by ExtractDeleteNames when nothing usable
// remains. Deleting it fails harmlessly and the user sees why.
const DeleteSentinel = "unknown-branch"

// ProtectedBranches are never removed by a bulk delete.
var ProtectedBranches = []string{"main", "master"}

// ExtractCreateName finds the branch name in "create [a] [branch] [named] NAME"
// or "create NAME branch" and sanitizes it. It falls back to
// DefaultBranchName(number).
func ExtractCreateName(text string, number int) string {
	name := ""
	if m := createNamePattern.FindStringSubmatch(text); m != nil {
		name = m[1]
		if strings.EqualFold(name, "branch") {
			name = ""
			if sm := createSuffixPattern.FindStringSubmatch(text); sm != nil {
				name = sm[1]
			}
		}
	}
	name = SanitizeBranch(name)
	if name == "" {
		return DefaultBranchName(number)
	}
	return name
}

// SanitizeBranch keeps ASCII letters, digits, '-' and '_'. It is idempotent.
func SanitizeBranch(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isBranchRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isBranchRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

// ExtractExceptions returns the bulk-delete keep set: every token after the
// word "except", split on commas and whitespace, plus ProtectedBranches.
// Names are lowercased. "except" is optional.
func ExtractExceptions(text string) map[string]struct{} {
	keep := make(map[string]struct{}, len(ProtectedBranches))
	for _, name := range ProtectedBranches {
		keep[name] = struct{}{}
	}

	_, rest, found := strings.Cut(strings.ToLower(text), "except")
	if !found {
		return keep
	}
	for _, tok := range strings.Fields(strings.ReplaceAll(rest, ",", " ")) {
		tok = strings.TrimRight(tok, ".!?;:")
		if tok != "" {
			keep[tok] = struct{}{}
		}
	}
	return keep
}

// ExtractDeleteNames strips the mention and command words from text and
// returns the remaining tokens longer than two characters, in order.
// It returns []string{DeleteSentinel} when none remain.
func ExtractDeleteNames(text string) []string {
	text = deleteStopwords.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "@", "")
	text = strings.ReplaceAll(text, ",", " ")

	var names []string
	for _, tok := range strings.Fields(text) {
		if len(tok) > 2 {
			names = append(names, tok)
		}
	}
	if len(names) == 0 {
		return []string{DeleteSentinel}
	}
	return names
}
