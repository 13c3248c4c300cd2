package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/risk"
	"github.com/prgate/prgate/internal/ui"
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze",
	GroupID: GroupTools,
	Short:   "Dry-run a risk analysis",
	Long: `Run the risk analysis for a pull request without posting comments, setting
statuses, filing tickets or merging anything.

The diff is fetched from GitHub unless --diff-file is given.

Examples:
  prgate analyze --repo acme/api --pr 42
  prgate analyze --diff-file change.diff --request "@pr-agent bump the timeout"`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("repo", "", "Repository (owner/name)")
	analyzeCmd.Flags().Int("pr", 0, "Pull request number")
	analyzeCmd.Flags().String("request", "", "Request text (default: the automatic trigger)")
	analyzeCmd.Flags().String("diff-file", "", "Read the diff from a file instead of GitHub")
	rootCmd.AddCommand(analyzeCmd)
}

type analyzeOutput struct {
	Repo     string     `json:"repo,omitempty"`
	PRNumber int        `json:"pr,omitempty"`
	Level    risk.Level `json:"level"`
	Degraded bool       `json:"degraded"`
	Cause    string     `json:"cause,omitempty"`
	Analysis string     `json:"analysis"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	number, _ := cmd.Flags().GetInt("pr")
	request, _ := cmd.Flags().GetString("request")
	diffFile, _ := cmd.Flags().GetString("diff-file")
	if request == "" {
		request = continuation.AutomaticTriggerRequest
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx, stop := signalContext()
	defer stop()

	var diff string
	switch {
	case diffFile != "":
		data, err := os.ReadFile(diffFile) // #nosec G304 - user-provided path
		if err != nil {
			return fmt.Errorf("read diff: %w", err)
		}
		diff = string(data)
	case repo != "" && number > 0:
		diff, err = newGitHubClient(cfg).GetDiff(ctx, repo, number)
		if err != nil {
			return fmt.Errorf("fetch diff for %s#%d: %w", repo, number, err)
		}
	default:
		return errors.New("either --diff-file or both --repo and --pr are required")
	}

	analyzer, err := newAnalyzer(cfg, logger)
	if err != nil {
		return err
	}
	a := analyzer.Assess(ctx, risk.Request{Repo: repo, PRNumber: number, Diff: diff, Text: request})

	res := analyzeOutput{
		Repo:     repo,
		PRNumber: number,
		Level:    a.Level,
		Degraded: a.Degraded,
		Analysis: a.Analysis,
	}
	if a.Cause != nil {
		res.Cause = a.Cause.Error()
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, res)
	}
	fmt.Fprintln(out, ui.RenderCategory("risk analysis"))
	fmt.Fprintln(out, ui.RenderField("risk", ui.RenderLevel(a.Level)))
	if a.Degraded {
		fmt.Fprintln(out, ui.RenderField("degraded", ui.RenderWarn(ui.TruncateSimple(res.Cause, 100))))
	}
	gate := "merge / execute"
	if a.Level.Gated() {
		gate = "pause for approval"
	}
	fmt.Fprintln(out, ui.RenderField("action", gate))
	fmt.Fprintln(out, ui.RenderSeparator())
	fmt.Fprintln(out, renderAnalysis(a.Analysis))
	return nil
}

// renderAnalysis truncates long analyses. With color it renders markdown;
// plain output is wrapped to the terminal width.
func renderAnalysis(text string) string {
	body := ui.TruncateLines(text, ui.DefaultMaxLines, 10)
	if ui.ShouldUseColor() {
		return strings.TrimRight(ui.RenderMarkdown(body), "\n")
	}
	return ui.WrapText(body, ui.Width())
}
