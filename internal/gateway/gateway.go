// Package gateway routes decoded webhook events: lifecycle events and
// governed commands go to the workflow controller, decisions resume it, and
// branch housekeeping runs directly against the host.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/event"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/telemetry"
	"github.com/prgate/prgate/internal/workflow"
)

// Controller is the workflow surface the gateway drives.
// *workflow.Controller implements it.
type Controller interface {
	Analyze(ctx context.Context, t workflow.Trigger) workflow.Result
	Approve(ctx context.Context, d workflow.Decision) workflow.Result
	Reject(ctx context.Context, d workflow.Decision) workflow.Result
}

// Route names what the gateway did with an event.
type Route string

const (
	RouteIgnored  Route = "ignored"
	RouteAutoPR   Route = "auto_pr"
	RouteAnalysis Route = "analysis"
	RouteDecision Route = "decision"
	RouteFastPath Route = "fast_path"
)

// Outcome reports how an event was handled.
type Outcome struct {
	Route  Route
	Intent intent.Kind
	// Reason explains an ignored event.
	Reason string
	// Result is set when the controller ran.
	Result *workflow.Result
}

// Config tunes routing.
type Config struct {
	// Mention addresses the agent; comments without it are ignored.
	Mention string
	// StrictDecisions requires "approved"/"rejected" to be the whole
	// message or its first or last word.
	StrictDecisions bool
	// BotLogin is the agent's own login; its comments are never routed.
	BotLogin string
	// DeleteConcurrency bounds parallel deletes in a bulk delete.
	DeleteConcurrency int
	// EventTimeout bounds one dispatched event.
	EventTimeout time.Duration
	// DisableAutoPR turns off pull request creation for pushed branches.
	DisableAutoPR bool
}

// DefaultConfig returns the routing defaults.
func DefaultConfig() Config {
	return Config{
		Mention:           intent.DefaultMention,
		DeleteConcurrency: 4,
		EventTimeout:      5 * time.Minute,
	}
}

// Gateway routes events. It holds no per-event state; Dispatch runs each
// event on its own goroutine.
type Gateway struct {
	host   executor.Host
	ctrl   Controller
	cfg    Config
	logger *slog.Logger
	wg     sync.WaitGroup

	events  metric.Int64Counter
	intents metric.Int64Counter
}

// New creates a Gateway.
func New(host executor.Host, ctrl Controller, cfg Config, logger *slog.Logger) *Gateway {
	def := DefaultConfig()
	if cfg.Mention == "" {
		cfg.Mention = def.Mention
	}
	if cfg.DeleteConcurrency <= 0 {
		cfg.DeleteConcurrency = def.DeleteConcurrency
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = def.EventTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := telemetry.Meter("github.com/prgate/prgate/gateway")
	events, _ := m.Int64Counter("prgate.events",
		metric.WithDescription("Webhook events routed"),
		metric.WithUnit("{event}"),
	)
	intents, _ := m.Int64Counter("prgate.intents",
		metric.WithDescription("Agent commands by classified intent"),
		metric.WithUnit("{command}"),
	)
	return &Gateway{
		host:    host,
		ctrl:    ctrl,
		cfg:     cfg,
		logger:  logger.With("component", "gateway"),
		events:  events,
		intents: intents,
	}
}

// Dispatch handles ev in the background and returns immediately. The
// event outlives the caller's context, bounded by Config.EventTimeout.
func (g *Gateway) Dispatch(ctx context.Context, ev event.Event) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.EventTimeout)
		defer cancel()
		g.Handle(ctx, ev)
	}()
}

// Wait blocks until dispatched events finish or ctx is done.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle routes one event synchronously. It never fails: collaborator
// errors are reported on the PR or logged.
func (g *Gateway) Handle(ctx context.Context, ev event.Event) Outcome {
	log := g.logger.With("event", ev.Kind, "action", ev.Action, "repo", ev.Repo, "delivery", ev.Delivery)

	var out Outcome
	switch ev.Kind {
	case event.Push:
		out = g.handlePush(ctx, ev)
	case event.PullRequest:
		out = g.handlePullRequest(ctx, ev)
	case event.IssueComment:
		out = g.handleComment(ctx, ev)
	default:
		out = ignored("event kind %s", ev.Kind)
	}

	if g.events != nil {
		g.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(ev.Kind)),
			attribute.String("route", string(out.Route)),
		))
	}
	if out.Route == RouteIgnored {
		log.Debug("event ignored", "reason", out.Reason)
	} else {
		log.Info("event routed", "route", out.Route, "intent", out.Intent, "number", ev.Number)
	}
	return out
}

func (g *Gateway) handlePullRequest(ctx context.Context, ev event.Event) Outcome {
	if !ev.Lifecycle() {
		return ignored("pull_request action %s", ev.Action)
	}
	if ev.Action == event.ActionReopened && g.reopenedByAgent(ctx, ev.Repo, ev.Number) {
		return ignored("PR #%d reopened after risk acceptance", ev.Number)
	}

	g.pending(ctx, ev.Repo, ev.Number, ev.HeadSHA)
	res := g.ctrl.Analyze(ctx, workflow.Trigger{
		Repo:      ev.Repo,
		PRNumber:  ev.Number,
		Automatic: true,
		HeadSHA:   ev.HeadSHA,
		Sender:    ev.Sender,
	})
	return Outcome{Route: RouteAnalysis, Result: &res}
}

// reopenedByAgent reports whether the newest outcome or analysis comment is
// a risk acceptance, which means the controller reopened the PR itself.
func (g *Gateway) reopenedByAgent(ctx context.Context, repo string, number int) bool {
	comments, err := g.host.ListComments(ctx, repo, number)
	if err != nil {
		g.logger.Warn("list comments for reopen check failed", "repo", repo, "pr", number, "error", err)
		return false
	}
	for i := len(comments) - 1; i >= 0; i-- {
		body := comments[i].Body
		if !continuation.IsAnalysis(body) && !continuation.IsTerminal(body) {
			continue
		}
		return strings.Contains(body, continuation.RiskAcceptedMarker)
	}
	return false
}

// pending marks an analysis as started. Both calls are bookkeeping.
func (g *Gateway) pending(ctx context.Context, repo string, number int, sha string) {
	if sha != "" {
		if err := g.host.SetCommitStatus(ctx, repo, sha, executor.Pending, "Analyzing Risk..."); err != nil {
			g.logger.Warn("set pending status failed", "repo", repo, "sha", sha, "error", err)
		}
	}
	if err := g.host.PostComment(ctx, repo, number, continuation.Sign(workflow.PendingComment)); err != nil {
		g.logger.Warn("post pending comment failed", "repo", repo, "pr", number, "error", err)
	}
}

func (g *Gateway) handleComment(ctx context.Context, ev event.Event) Outcome {
	if ev.Action != event.ActionCreated {
		return ignored("issue_comment action %s", ev.Action)
	}
	if ev.AuthorIsBot || (g.cfg.BotLogin != "" && strings.EqualFold(ev.CommentAuthor, g.cfg.BotLogin)) {
		return ignored("comment by bot %s", ev.CommentAuthor)
	}
	if continuation.IsAgentComment(ev.CommentBody) || continuation.IsTerminal(ev.CommentBody) {
		return ignored("agent comment by %s", ev.CommentAuthor)
	}
	text := ev.CommentBody
	if !intent.HasMention(text, g.cfg.Mention) {
		return ignored("no %s mention", g.cfg.Mention)
	}
	actor := ev.CommentAuthor
	if actor == "" {
		actor = ev.Sender
	}

	if d := intent.DetectDecision(text, g.cfg.Mention, g.cfg.StrictDecisions); d != intent.NoDecision {
		res := g.Decide(ctx, d, workflow.Decision{Repo: ev.Repo, PRNumber: ev.Number, Message: text, Actor: actor})
		return Outcome{Route: RouteDecision, Result: &res}
	}

	cmd := intent.NewCommand(text, actor, ev.Repo, ev.Number, ev.IsPR)
	kind := cmd.Intent.Kind()
	if g.intents != nil {
		g.intents.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", string(kind))))
	}
	g.logger.Info("command classified", "repo", ev.Repo, "number", ev.Number, "intent", kind, "sender", actor)

	switch in := cmd.Intent.(type) {
	case intent.CreateBranch:
		g.createBranch(ctx, cmd, in.Name)
	case intent.DeleteBranches:
		g.deleteBranches(ctx, cmd, in.Names)
	case intent.BulkDelete:
		g.bulkDelete(ctx, cmd, in)
	case intent.ListBranches:
		g.listBranches(ctx, cmd)
	case intent.CompoundCreateAndChange:
		res := g.compound(ctx, cmd, in.Branch)
		return Outcome{Route: RouteAnalysis, Intent: kind, Result: &res}
	default:
		g.pending(ctx, cmd.Repo, cmd.Number, "")
		res := g.ctrl.Analyze(ctx, workflow.Trigger{
			Repo:     cmd.Repo,
			PRNumber: cmd.Number,
			Request:  cmd.Text,
			Sender:   cmd.Sender,
		})
		return Outcome{Route: RouteAnalysis, Intent: kind, Result: &res}
	}
	return Outcome{Route: RouteFastPath, Intent: kind}
}

// Decide resumes a paused workflow. It is also the entry point for
// decisions arriving through approval links.
func (g *Gateway) Decide(ctx context.Context, d intent.Decision, dec workflow.Decision) workflow.Result {
	g.logger.Info("decision received", "repo", dec.Repo, "pr", dec.PRNumber, "decision", d, "actor", dec.Actor)
	if d == intent.Rejected {
		return g.ctrl.Reject(ctx, dec)
	}
	return g.ctrl.Approve(ctx, dec)
}
