// Package workflow is the risk-tier state machine. It asks for a risk
// verdict, executes or pauses, and on a later decision recovers the paused
// context from the PR thread and drives the executor to completion.
package workflow

import (
	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/risk"
)

// State is a workflow state. A Result carries the state the workflow
// reached when the call returned.
type State string

const (
	Analyzing         State = "ANALYZING"
	AutoExecuted      State = "AUTO_EXECUTED"
	Analyzed          State = "ANALYZED"
	PausedForApproval State = "PAUSED_FOR_APPROVAL"
	DegradedPause     State = "DEGRADED_PAUSE"
	Executing         State = "EXECUTING"
	Executed          State = "EXECUTED"
	Rejected          State = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case AutoExecuted, Analyzed, Executed, Rejected:
		return true
	}
	return false
}

// Paused reports whether the workflow waits for a decision.
func (s State) Paused() bool {
	return s == PausedForApproval || s == DegradedPause
}

// TicketStatus tracks a governance ticket.
type TicketStatus string

const (
	TicketPending  TicketStatus = "PENDING"
	TicketApproved TicketStatus = "APPROVED"
	TicketRejected TicketStatus = "REJECTED"
	TicketExecuted TicketStatus = "EXECUTED"
)

// Ticket is the workflow's view of a governance ticket. It exists only for
// MEDIUM and HIGH verdicts.
type Ticket struct {
	ID        string
	Level     risk.Level
	Request   string
	Repo      string
	PRNumber  int
	CommitSHA string
	Status    TicketStatus
}

// ticketFromRecord rebuilds a ticket from a recovered record.
func ticketFromRecord(r continuation.Record, status TicketStatus) *Ticket {
	return &Ticket{
		ID:        r.TicketID,
		Level:     risk.Level(r.RiskLevel),
		Request:   r.Request,
		Repo:      r.Repo,
		PRNumber:  r.PRNumber,
		CommitSHA: r.CommitSHA,
		Status:    status,
	}
}

// Result reports what a controller call did.
type Result struct {
	State  State
	Ticket *Ticket
	Level  risk.Level
	// Degraded is set when the verdict came from the fallback path.
	Degraded bool
	// Source is where resume context came from.
	Source continuation.Source
	// Duplicate is set when a decision arrived after the outcome was
	// already posted; nothing was executed.
	Duplicate bool
	// Branch and Path name the mutation target of an executed change.
	Branch string
	Path   string
	// Failure is the user-visible reason a resume could not complete. The
	// workflow stays paused.
	Failure string
}
