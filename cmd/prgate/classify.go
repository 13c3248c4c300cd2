package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/ui"
)

var classifyCmd = &cobra.Command{
	Use:     "classify TEXT...",
	GroupID: GroupTools,
	Short:   "Show how a comment would be routed",
	Long: `Classify comment text the way the webhook gateway does and print the intent,
its extracted arguments and any approval decision it carries.

Examples:
  prgate classify "@pr-agent delete all branches except develop"
  prgate classify --number 12 --json "@pr-agent create a branch and add logging to app.py"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().Bool("pr", false, "Treat the text as a comment on a pull request")
	classifyCmd.Flags().Int("number", 0, "Issue or PR number used for default branch names")
	classifyCmd.Flags().Bool("strict", false, "Use strict approval-word matching")
	classifyCmd.Flags().String("mention", intent.DefaultMention, "Agent mention handle")
	rootCmd.AddCommand(classifyCmd)
}

// classification is the printable form of a classified command.
type classification struct {
	Kind     intent.Kind     `json:"kind"`
	Governed bool            `json:"governed"`
	Mention  bool            `json:"mentioned"`
	IsPR     bool            `json:"pr"`
	Decision intent.Decision `json:"decision,omitempty"`
	Branch   string          `json:"branch,omitempty"`
	Names    []string        `json:"names,omitempty"`
	Keep     []string        `json:"keep,omitempty"`
	Signals  intent.Signals  `json:"signals"`
}

func classifyText(text, mention string, number int, isPR, strict bool) classification {
	in := intent.NewCommand(text, "", "", number, isPR).Intent
	c := classification{
		Kind:     in.Kind(),
		IsPR:     isPR,
		Governed: intent.Governed(in),
		Mention:  intent.HasMention(text, mention),
		Decision: intent.DetectDecision(text, mention, strict),
		Signals:  intent.Scan(strings.ToLower(text)),
	}
	switch v := in.(type) {
	case intent.CompoundCreateAndChange:
		c.Branch = v.Branch
	case intent.CreateBranch:
		c.Branch = v.Name
	case intent.DeleteBranches:
		c.Names = v.Names
	case intent.BulkDelete:
		c.Keep = v.Sorted()
	}
	return c
}

func runClassify(cmd *cobra.Command, args []string) error {
	isPR, _ := cmd.Flags().GetBool("pr")
	number, _ := cmd.Flags().GetInt("number")
	strict, _ := cmd.Flags().GetBool("strict")
	mention, _ := cmd.Flags().GetString("mention")

	c := classifyText(strings.Join(args, " "), mention, number, isPR, strict)
	out := cmd.OutOrStdout()
	if jsonOutput {
		return outputJSON(out, c)
	}

	fmt.Fprintln(out, ui.RenderField("intent", ui.RenderAccent(string(c.Kind))))
	governed := "no (fast path)"
	if c.Governed {
		governed = "yes (risk analysis)"
	}
	fmt.Fprintln(out, ui.RenderField("governed", governed))
	if !c.Mention {
		fmt.Fprintln(out, ui.RenderField("mention", ui.RenderWarn("missing "+mention+"; the gateway would ignore this comment")))
	}
	if c.Decision != intent.NoDecision {
		fmt.Fprintln(out, ui.RenderField("decision", c.Decision))
	}
	if c.Branch != "" {
		fmt.Fprintln(out, ui.RenderField("branch", c.Branch))
	}
	if len(c.Names) > 0 {
		fmt.Fprintln(out, ui.RenderField("delete", strings.Join(c.Names, ", ")))
	}
	if len(c.Keep) > 0 {
		fmt.Fprintln(out, ui.RenderField("keep", strings.Join(c.Keep, ", ")))
	}
	return nil
}
