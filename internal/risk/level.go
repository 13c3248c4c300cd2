// Package risk builds risk-analysis prompts, calls a completion backend and
// turns its free-form answer into a risk level.
package risk

import (
	"regexp"
	"strings"
)

// Level is a risk verdict.
type Level string

const (
	Low    Level = "LOW"
	Medium Level = "MEDIUM"
	High   Level = "HIGH"
)

// Tolerates "RISK LEVEL: HIGH", "**RISK LEVEL:** HIGH" and "Risk level - high".
var levelPattern = regexp.MustCompile(`(?i)RISK LEVEL\W+(HIGH|MEDIUM|LOW)`)

// ParseLevel extracts the first risk verdict from analysis text. Text with
// no recognisable verdict is LOW.
func ParseLevel(analysis string) Level {
	m := levelPattern.FindStringSubmatch(analysis)
	if m == nil {
		return Low
	}
	return Level(strings.ToUpper(m[1]))
}

// Gated reports whether the level requires human approval.
func (l Level) Gated() bool {
	return l == Medium || l == High
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	switch l {
	case Low, Medium, High:
		return true
	}
	return false
}

func (l Level) String() string { return string(l) }
