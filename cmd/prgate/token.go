package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/ui"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	GroupID: GroupTools,
	Short:   "Inspect continuation tokens",
	Long: `Continuation tokens carry the context of a paused workflow. They are embedded
in the analysis comment as <!-- params: TOKEN --> and read back on approval.`,
}

var tokenEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a continuation record from flags",
	Long: `Encode a continuation record. The token can be pasted into an approval comment
as "Params: TOKEN" to resume a workflow whose analysis comment was lost.

Example:
  prgate token encode --repo acme/api --pr 7 --ticket SCRUM-12 \
    --request "@pr-agent add retries to services/x.py"`,
	RunE: runTokenEncode,
}

var tokenDecodeCmd = &cobra.Command{
	Use:   "decode TOKEN",
	Short: "Decode a continuation token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenDecode,
}

var tokenRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover the paused context from a PR thread",
	Long: `Scan a pull request's comments the way an approval does and print the
context that would be resumed, and where it came from.

Example:
  prgate token recover --repo acme/api --pr 7`,
	RunE: runTokenRecover,
}

func init() {
	f := tokenEncodeCmd.Flags()
	f.String("request", "", "Original request text")
	f.String("ticket", "", "Governance ticket id")
	f.String("repo", "", "Repository (owner/name)")
	f.Int("pr", 0, "Pull request number")
	f.String("sha", "", "Head commit SHA")
	f.String("risk", "", "Risk level (LOW, MEDIUM, HIGH)")
	f.String("branch", "", "Target branch")
	_ = tokenEncodeCmd.MarkFlagRequired("repo")
	_ = tokenEncodeCmd.MarkFlagRequired("pr")

	tokenRecoverCmd.Flags().String("repo", "", "Repository (owner/name)")
	tokenRecoverCmd.Flags().Int("pr", 0, "Pull request number")
	tokenRecoverCmd.Flags().String("message", "", "Decision message to resolve, as if it were just posted")
	_ = tokenRecoverCmd.MarkFlagRequired("repo")
	_ = tokenRecoverCmd.MarkFlagRequired("pr")

	tokenCmd.AddCommand(tokenEncodeCmd, tokenDecodeCmd, tokenRecoverCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenEncode(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	request, _ := f.GetString("request")
	ticket, _ := f.GetString("ticket")
	repo, _ := f.GetString("repo")
	number, _ := f.GetInt("pr")
	sha, _ := f.GetString("sha")
	level, _ := f.GetString("risk")
	branch, _ := f.GetString("branch")

	rec := continuation.NewRecord(request, ticket, repo, number, sha)
	rec.RiskLevel = strings.ToUpper(level)
	rec.Branch = branch
	token, err := continuation.Encode(rec)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), map[string]any{"token": token, "record": rec})
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runTokenDecode(cmd *cobra.Command, args []string) error {
	raw := args[0]
	// Accept a whole comment body or "Params: TOKEN" as well as a bare token
	if tok, ok := continuation.ExtractToken(raw); ok {
		raw = tok
	} else if tok, ok := continuation.InlineToken(raw); ok {
		raw = tok
	}
	rec, err := continuation.Decode(raw)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), rec)
	}
	printRecord(cmd, rec)
	return nil
}

func printRecord(cmd *cobra.Command, rec continuation.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.RenderField("kind", rec.Kind))
	fmt.Fprintln(out, ui.RenderField("repo", fmt.Sprintf("%s#%d", rec.Repo, rec.PRNumber)))
	fmt.Fprintln(out, ui.RenderField("ticket", rec.TicketID))
	if rec.RiskLevel != "" {
		fmt.Fprintln(out, ui.RenderField("risk", rec.RiskLevel))
	}
	if rec.CommitSHA != "" {
		fmt.Fprintln(out, ui.RenderField("sha", rec.CommitSHA))
	}
	if rec.Branch != "" {
		fmt.Fprintln(out, ui.RenderField("branch", rec.Branch))
	}
	fmt.Fprintln(out, ui.RenderField("request", rec.Request))
}

type recoverOutput struct {
	Source    continuation.Source `json:"source"`
	CommentID int64               `json:"comment_id,omitempty"`
	Skipped   int                 `json:"skipped,omitempty"`
	Settled   bool                `json:"settled"`
	Record    continuation.Record `json:"record"`
}

func runTokenRecover(cmd *cobra.Command, args []string) error {
	repo, _ := cmd.Flags().GetString("repo")
	number, _ := cmd.Flags().GetInt("pr")
	message, _ := cmd.Flags().GetString("message")
	if number <= 0 {
		return errors.New("--pr must be positive")
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	gh := newGitHubClient(cfg)
	title := ""
	if pr, err := gh.GetPullRequest(ctx, repo, number); err == nil {
		title = pr.Title
	}
	rc, err := newThreadStore(cfg, gh).Load(ctx, repo, number, message, title)
	if err != nil {
		return err
	}

	res := recoverOutput{
		Source:    rc.Source,
		CommentID: rc.CommentID,
		Skipped:   rc.Skipped,
		Settled:   rc.Settled != nil,
		Record:    rc.Record,
	}
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.RenderCategory(fmt.Sprintf("%s#%d", repo, number)))
	fmt.Fprintln(out, ui.RenderField("source", ui.RenderAccent(string(rc.Source))))
	if rc.Skipped > 0 {
		fmt.Fprintln(out, ui.RenderField("skipped", ui.RenderWarn(fmt.Sprintf("%d unreadable analysis comment(s)", rc.Skipped))))
	}
	if rc.Settled != nil {
		fmt.Fprintln(out, ui.RenderField("settled", ui.RenderWarn("already resolved; a new decision would be a duplicate")))
		fmt.Fprintln(out, ui.RenderField("outcome", ui.RenderMuted(ui.TruncateSimple(firstLine(rc.Settled.Body), 72))))
	}
	fmt.Fprintln(out, ui.RenderSeparator())
	printRecord(cmd, rc.Record)
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
