package workflow

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffStat summarises a file rewrite.
type DiffStat struct {
	Added      int
	Deleted    int
	Similarity float64 // 0..1, character-level
}

func (d DiffStat) String() string {
	return fmt.Sprintf("+%d −%d, %.0f%% similar", d.Added, d.Deleted, d.Similarity*100)
}

// ComputeDiffStat counts changed lines and the character similarity
// between old and new content.
func ComputeDiffStat(before, after string) DiffStat {
	dmp := diffmatchpatch.New()

	// Line mode: each line becomes one rune, so diff ops count whole lines.
	a, b, lines := dmp.DiffLinesToChars(before, after)
	lineDiffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var stat DiffStat
	for _, d := range lineDiffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stat.Added += n
		case diffmatchpatch.DiffDelete:
			stat.Deleted += n
		}
	}

	charDiffs := dmp.DiffMain(before, after, true)
	dist := dmp.DiffLevenshtein(charDiffs)
	maxLen := len(before)
	if len(after) > maxLen {
		maxLen = len(after)
	}
	stat.Similarity = 1
	if maxLen > 0 {
		stat.Similarity = 1.0 - float64(dist)/float64(maxLen)
	}
	return stat
}

// countLines counts the number of lines in a string.
// Empty strings return 0, trailing newlines don't count as extra lines.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return 1
	}
	return strings.Count(s, "\n") + 1
}
