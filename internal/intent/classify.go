package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// codeChangeVerbs must appear as whole words bounded by whitespace or the
// ends of the text. \b is not enough: it treats '-' as a boundary, so a
// branch named fix-1 would look like a verb.
var codeChangeVerbs = []string{"update", "modify", "change", "fix", "edit", "rewrite", "replace"}

var codeChangePattern = regexp.MustCompile(`(?:^|\s)(?:` + strings.Join(codeChangeVerbs, "|") + `)(?:\s|$)`)

// Signals are the keyword facts Classify decides on. They are exported so
// `prgate classify --json` can explain a decision.
type Signals struct {
	Create     bool `json:"create"`
	Delete     bool `json:"delete"`
	DeleteAll  bool `json:"delete_all"`
	List       bool `json:"list"`
	CodeChange bool `json:"code_change"`
}

// Scan computes the signals for already-lowercased text.
func Scan(text string) Signals {
	mentionsBranch := strings.Contains(text, "branch")
	deleteWord := strings.Contains(text, "delete")
	return Signals{
		Create:     strings.Contains(text, "create") && (mentionsBranch || strings.Contains(text, "named")),
		Delete:     (deleteWord || strings.Contains(text, "remove")) && mentionsBranch,
		DeleteAll:  deleteWord && strings.Contains(text, "all") && mentionsBranch,
		List:       (strings.Contains(text, "list") || strings.Contains(text, "show")) && mentionsBranch,
		CodeChange: codeChangePattern.MatchString(text),
	}
}

// Classify maps command text to exactly one intent using the fixed
// precedence compound > code change > bulk delete > delete > create > list.
// number is the issue or PR number, used for the default branch name.
func Classify(text string, number int) Intent {
	text = strings.ToLower(text)
	s := Scan(text)

	switch {
	case s.Create && s.CodeChange:
		return CompoundCreateAndChange{Branch: ExtractCreateName(text, number)}
	case s.CodeChange:
		return CodeChange{}
	case s.DeleteAll:
		return BulkDelete{Exceptions: ExtractExceptions(text)}
	case s.Delete:
		return DeleteBranches{Names: ExtractDeleteNames(text)}
	case s.Create:
		return CreateBranch{Name: ExtractCreateName(text, number)}
	case s.List:
		return ListBranches{}
	default:
		return Unclassified{}
	}
}

// DefaultBranchName is used when a create request names no branch.
func DefaultBranchName(number int) string {
	return fmt.Sprintf("ai-branch-%d", number)
}
