package workflow

import (
	"fmt"
	"strings"

	"github.com/prgate/prgate/internal/continuation"
)

// Comment headers. The analysis headers contain continuation.AnalysisMarker
// so thread recovery finds them; the LOW report deliberately does not.
const (
	analysisHeader = "**🤖 AI Risk Analysis**"
	fallbackHeader = "**🤖 AI Risk Analysis (Fallback Mode)**"
	reportHeader   = "**🤖 Risk Report**"
)

// PendingComment is posted when an automatic analysis starts.
const PendingComment = "⏳ **Risk Analysis: Analyzing...**"

func lowAutoComment(analysis string, merged bool, mergeMsg string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n\n", reportHeader, analysis)
	if merged {
		b.WriteString("✅ **Auto-Merge**: Low Risk. Merging automatically.")
	} else {
		b.WriteString("⚠️ **Auto-Merge**: Low Risk, but the merge was refused")
		if mergeMsg != "" {
			fmt.Fprintf(&b, " (%s)", mergeMsg)
		}
		b.WriteString(". Please merge manually.")
	}
	return b.String()
}

func lowManualComment(analysis string) string {
	return fmt.Sprintf("%s\n\n%s", reportHeader, analysis)
}

func pausedComment(ticketID, analysis string, degraded bool, token string) string {
	header := analysisHeader
	if degraded {
		header = fallbackHeader
	}
	body := fmt.Sprintf("%s\n\n%s\n\n%s\n\n⏸️ **Paused:** Waiting for approval via email.",
		header, continuation.TicketLine(ticketID), analysis)
	if token == "" {
		return body
	}
	return continuation.Annotate(body, token)
}

func riskAcceptedComment(actor, ticketID string) string {
	return fmt.Sprintf("✅ **%s**\n\nPR has been unblocked by %s (Re-opened).\n\n**Jira Updated:** %s",
		continuation.RiskAcceptedMarker, actor, ticketID)
}

func mergeStatusComment(merged bool) string {
	if merged {
		return "**Status:** Merged Automatically 🚀"
	}
	return "**Status:** Ready to Merge (Manual Merge Required)"
}

func executedComment(request, path, branch, actor string, stat DiffStat) string {
	return fmt.Sprintf("✅ **%s**\n\nRequest: %s\n\nUpdated `%s` on branch `%s` (%s)\n\n**Approved By:** %s",
		continuation.ExecutedMarker, continuation.Quote(request), path, branch, stat, actor)
}

func rejectedComment(actor, ticketID string) string {
	return fmt.Sprintf("❌ **%s**\n\nThe request was rejected by %s. No changes were made.\n\n**Jira Updated:** %s",
		continuation.RejectedMarker, actor, ticketID)
}

func failedComment(reason string) string {
	return fmt.Sprintf("❌ **Execution Failed**\n\n%s", reason)
}

func approvalFailedComment(reason string) string {
	return fmt.Sprintf("⚠️ **Approval Failed**\n\n%s", reason)
}

func noTargetComment(request string) string {
	return fmt.Sprintf("⚠️ **No Target File**\n\nCould not find a file to change in: %q\n\n"+
		"Name the file in the request, for example `update services/api.py to add retries`, and approve again.",
		continuation.Quote(request))
}

func duplicateComment(decision string) string {
	return fmt.Sprintf("ℹ️ This request was already processed; ignoring the repeated %q decision.", decision)
}

func statusDescription(level string) string {
	switch level {
	case "HIGH":
		return "High Risk - Approval Required"
	case "MEDIUM":
		return "Medium Risk - Approval Required"
	}
	return level + " Risk - Approval Required"
}
