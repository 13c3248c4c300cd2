package risk

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

const analysisPromptTemplate = `You are a PR Risk Analyzer. Analyze the following request and provide a risk assessment.

Context: PULL REQUEST #{{.PRNumber}} in {{.Repo}}
Existing Code Changes (Diff):
{{.Diff}}

User Request: {{.Request}}

KNOWLEDGE BASE CONTEXT (use this for risk analysis):

{{.KB.ArchitectureMap}}

{{.KB.IncidentHistory}}

{{.KB.DeploymentPolicies}}

INSTRUCTIONS:
1. Analyze the request using the KNOWLEDGE BASE above
2. Identify risk level: LOW, MEDIUM, or HIGH
3. Reference specific incidents or policies from the KB
4. Explain your reasoning

RISK CLASSIFICATION RULES:
{{- range .KB.Rules}}
- {{.}}
{{- end}}

Provide your analysis in this format:
RISK LEVEL: [LOW/MEDIUM/HIGH]
REASONING: [Your detailed analysis referencing KB]
RECOMMENDATION: [What should be done]
`

const transformPromptTemplate = `You are a Code Editor.
User's Request: {{.Request}}
File: {{.Path}}
Current Content:
{{.Content}}

Apply the requested changes and output ONLY the full new content of the file. No markdown blocks, no explanations.`

var (
	analysisTmpl  = template.Must(template.New("analysis").Parse(analysisPromptTemplate))
	transformTmpl = template.Must(template.New("transform").Parse(transformPromptTemplate))
)

// NoDiff is the diff text used when the PR diff could not be fetched.
const NoDiff = "No code diff available."

// DefaultDiffLimit bounds the diff bytes included in a prompt.
const DefaultDiffLimit = 5000

type analysisData struct {
	Repo     string
	PRNumber int
	Diff     string
	Request  string
	KB       KnowledgeBase
}

type transformData struct {
	Request string
	Path    string
	Content string
}

// RenderAnalysisPrompt renders the risk-analysis prompt. diff is truncated
// to limit bytes on a UTF-8 boundary.
func RenderAnalysisPrompt(kb KnowledgeBase, req Request, limit int) (string, error) {
	diff := req.Diff
	if strings.TrimSpace(diff) == "" {
		diff = NoDiff
	}
	var buf bytes.Buffer
	err := analysisTmpl.Execute(&buf, analysisData{
		Repo:     req.Repo,
		PRNumber: req.PRNumber,
		Diff:     Truncate(diff, limit),
		Request:  req.Text,
		KB:       kb,
	})
	if err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

// RenderTransformPrompt renders the file-rewrite prompt.
func RenderTransformPrompt(request, path, content string) (string, error) {
	var buf bytes.Buffer
	if err := transformTmpl.Execute(&buf, transformData{Request: request, Path: path, Content: content}); err != nil {
		return "", fmt.Errorf("render transform prompt: %w", err)
	}
	return buf.String(), nil
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8
// sequence. A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

var (
	leadingFence  = regexp.MustCompile("^```[\\w+-]*\\n")
	trailingFence = regexp.MustCompile("\\n```$")
)

// StripFences removes a leading ```lang line and a trailing ``` line that
// models add despite being told not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return s
}
