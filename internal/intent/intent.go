// Package intent turns free-text agent commands into executable intents.
//
// Classify is the only routing decision tree in prgate. The webhook gateway
// uses it for fast-path dispatch and the workflow controller uses it again on
// resume to re-derive what an approved request meant.
package intent

import (
	"sort"
	"strings"
)

// Kind names an intent variant. Values are stable and appear in logs,
// metrics and `prgate classify --json` output.
type Kind string

const (
	KindCompound       Kind = "compound_create_and_change"
	KindCodeChange     Kind = "code_change"
	KindBulkDelete     Kind = "bulk_delete"
	KindDeleteBranches Kind = "delete_branches"
	KindCreateBranch   Kind = "create_branch"
	KindListBranches   Kind = "list_branches"
	KindUnclassified   Kind = "unclassified"
)

// Intent is the tagged result of classification. The set of implementations
// is closed; switch on the concrete type.
type Intent interface {
	Kind() Kind
	isIntent()
}

// CodeChange asks for a modification of repository content.
type CodeChange struct{}

// CompoundCreateAndChange asks for a new branch and a code change on it.
type CompoundCreateAndChange struct {
	Branch string
}

// BulkDelete asks for every branch to be deleted except the keep set.
type BulkDelete struct {
	// Exceptions holds lowercased branch names. It always contains main and master.
	Exceptions map[string]struct{}
}

// DeleteBranches asks for the named branches to be deleted, in order.
type DeleteBranches struct {
	Names []string
}

// CreateBranch asks for a single new branch.
type CreateBranch struct {
	Name string
}

// ListBranches asks for the repository's branches.
type ListBranches struct{}

// Unclassified is anything else. It is routed to full risk analysis.
type Unclassified struct{}

func (CodeChange) Kind() Kind              { return KindCodeChange }
func (CompoundCreateAndChange) Kind() Kind { return KindCompound }
func (BulkDelete) Kind() Kind              { return KindBulkDelete }
func (DeleteBranches) Kind() Kind          { return KindDeleteBranches }
func (CreateBranch) Kind() Kind            { return KindCreateBranch }
func (ListBranches) Kind() Kind            { return KindListBranches }
func (Unclassified) Kind() Kind            { return KindUnclassified }

func (CodeChange) isIntent()              {}
func (CompoundCreateAndChange) isIntent() {}
func (BulkDelete) isIntent()              {}
func (DeleteBranches) isIntent()          {}
func (CreateBranch) isIntent()            {}
func (ListBranches) isIntent()            {}
func (Unclassified) isIntent()            {}

// Keeps reports whether name is protected from a bulk delete.
// Comparison is case-insensitive.
func (b BulkDelete) Keeps(name string) bool {
	_, ok := b.Exceptions[strings.ToLower(name)]
	return ok
}

// Sorted returns the keep set in lexical order, for display.
func (b BulkDelete) Sorted() []string {
	out := make([]string, 0, len(b.Exceptions))
	for name := range b.Exceptions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Governed reports whether an intent must go through risk analysis rather
// than a direct fast-path action.
func Governed(i Intent) bool {
	switch i.(type) {
	case CodeChange, CompoundCreateAndChange, Unclassified:
		return true
	default:
		return false
	}
}

// Command is one inbound agent request. It lives for a single event.
type Command struct {
	Text   string // original text, case preserved
	Sender string
	Repo   string // owner/name
	Number int    // issue or pull request number
	IsPR   bool
	Intent Intent
}

// NewCommand builds a Command and classifies its text.
func NewCommand(text, sender, repo string, number int, isPR bool) Command {
	return Command{
		Text:   text,
		Sender: sender,
		Repo:   repo,
		Number: number,
		IsPR:   isPR,
		Intent: Classify(text, number),
	}
}
