package workflow

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/executor"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/risk"
	"github.com/prgate/prgate/internal/telemetry"
)

// Assessor produces risk verdicts and file rewrites. *risk.Analyzer
// implements it.
type Assessor interface {
	Assess(ctx context.Context, req risk.Request) risk.Assessment
	Transform(ctx context.Context, request, path, content string) (string, error)
}

// LinkBuilder builds the decision links placed in approval notifications.
type LinkBuilder interface {
	DecisionURL(decision intent.Decision, repo string, number int) string
}

// Config tunes a Controller.
type Config struct {
	// ProbePrefix and ProbeCount define the candidate branches tried when
	// the PR cannot be fetched on approval (test-v1..test-v19).
	ProbePrefix string
	ProbeCount  int
	// FreshPrefix names the branch created when no candidate exists.
	FreshPrefix string
	// TicketProject prefixes local ticket ids when no tracker answers.
	TicketProject string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the probing and naming defaults.
func DefaultConfig() Config {
	return Config{
		ProbePrefix:   "test-v",
		ProbeCount:    19,
		FreshPrefix:   "approved-change",
		TicketProject: executor.DefaultTicketProject,
	}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Host     executor.Host
	Tickets  executor.Tickets  // nil uses local ticket ids only
	Notifier executor.Notifier // nil skips notification
	Assessor Assessor
	Store    continuation.Store // nil recovers from Host comments
	Links    LinkBuilder        // nil omits decision links
	Logger   *slog.Logger
}

// Controller runs the risk-tier workflow. It holds no per-request state and
// is safe for concurrent use.
type Controller struct {
	host     executor.Host
	tickets  executor.Tickets
	notifier executor.Notifier
	assessor Assessor
	store    continuation.Store
	links    LinkBuilder
	logger   *slog.Logger
	cfg      Config
	tracer   trace.Tracer
}

// New creates a Controller.
func New(deps Deps, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.FreshPrefix == "" {
		cfg.FreshPrefix = def.FreshPrefix
	}
	if cfg.TicketProject == "" {
		cfg.TicketProject = def.TicketProject
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store := deps.Store
	if store == nil {
		store = continuation.NewThreadStore(deps.Host, continuation.Options{})
	}
	return &Controller{
		host:     deps.Host,
		tickets:  deps.Tickets,
		notifier: deps.Notifier,
		assessor: deps.Assessor,
		store:    store,
		links:    deps.Links,
		logger:   logger.With("component", "workflow"),
		cfg:      cfg,
		tracer:   telemetry.Tracer("github.com/prgate/prgate/workflow"),
	}
}

// startSpan opens a span tagged with the repository and PR.
func (c *Controller) startSpan(ctx context.Context, name, repo string, number int) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("prgate.repo", repo),
		attribute.Int("prgate.pr", number),
	)
	return ctx, span
}

func endSpan(span trace.Span, res Result) {
	span.SetAttributes(attribute.String("prgate.state", string(res.State)))
	if res.Failure != "" {
		span.SetStatus(codes.Error, res.Failure)
	}
	span.End()
}

// comment posts a signed bookkeeping comment; failures are logged, not
// returned.
func (c *Controller) comment(ctx context.Context, repo string, number int, body string) {
	if err := c.host.PostComment(ctx, repo, number, continuation.Sign(body)); err != nil {
		c.logger.Warn("post comment failed", "repo", repo, "pr", number, "error", err)
	}
}

// status sets the commit status when sha is known; failures are logged.
func (c *Controller) status(ctx context.Context, repo, sha string, state executor.CommitState, desc string) {
	if sha == "" {
		c.logger.Debug("no commit sha, skipping status", "repo", repo, "state", state)
		return
	}
	if err := c.host.SetCommitStatus(ctx, repo, sha, state, desc); err != nil {
		c.logger.Warn("set commit status failed", "repo", repo, "sha", sha, "error", err)
	}
}

// ticketNote comments on and labels a ticket. Local ids and tracker errors
// are tolerated.
func (c *Controller) ticketNote(ctx context.Context, id, text string, labels ...string) {
	if c.tickets == nil || id == "" || id == continuation.UnknownTicket {
		return
	}
	if err := c.tickets.CommentTicket(ctx, id, text); err != nil {
		c.logger.Warn("ticket comment failed", "ticket", id, "error", err)
	}
	if len(labels) > 0 {
		if err := c.tickets.LabelTicket(ctx, id, labels); err != nil {
			c.logger.Warn("ticket label failed", "ticket", id, "error", err)
		}
	}
}
