package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/prgate/prgate/internal/telemetry"
)

// ErrBackendUnavailable wraps any completion failure, including timeouts.
var ErrBackendUnavailable = errors.New("risk backend unavailable")

// FallbackAnalysis is posted when the backend cannot be reached. It parses
// as MEDIUM so the degraded path pauses like any other gated verdict.
const FallbackAnalysis = `RISK LEVEL: MEDIUM
REASONING: Unable to perform AI analysis due to technical error. Defaulting to cautious approach.
RECOMMENDATION: Please review manually.`

// Backend completes a single prompt. Implementations must not retry.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Request is the input to one analysis.
type Request struct {
	Repo     string
	PRNumber int
	Diff     string
	Text     string
}

// Assessment is an analysis outcome. Degraded assessments carry the
// fallback text and the cause.
type Assessment struct {
	Level    Level
	Analysis string
	Degraded bool
	Cause    error
}

// Config tunes an Analyzer.
type Config struct {
	DiffLimit int           // bytes of diff in the prompt; 0 selects DefaultDiffLimit
	Timeout   time.Duration // bound on each backend call; 0 disables
}

// Analyzer runs risk analyses and file transforms against a Backend.
type Analyzer struct {
	backend Backend
	kb      KnowledgeBase
	cfg     Config
	logger  *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(backend Backend, kb KnowledgeBase, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.DiffLimit == 0 {
		cfg.DiffLimit = DefaultDiffLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	riskMetricsOnce.Do(initRiskMetrics)
	return &Analyzer{backend: backend, kb: kb, cfg: cfg, logger: logger.With("component", "risk")}
}

// KnowledgeBase returns the reference material the analyzer was built with.
func (a *Analyzer) KnowledgeBase() KnowledgeBase { return a.kb }

var riskMetrics struct {
	verdicts metric.Int64Counter
}

var riskMetricsOnce sync.Once

func initRiskMetrics() {
	m := telemetry.Meter("github.com/prgate/prgate/risk")
	riskMetrics.verdicts, _ = m.Int64Counter("prgate.risk.verdicts",
		metric.WithDescription("Risk verdicts by level"),
		metric.WithUnit("{verdict}"),
	)
}

// Assess analyses a request. It never fails: a prompt or backend error
// yields a degraded MEDIUM assessment.
func (a *Analyzer) Assess(ctx context.Context, req Request) Assessment {
	ctx, span := telemetry.Tracer("github.com/prgate/prgate/risk").Start(ctx, "risk.assess")
	defer span.End()
	span.SetAttributes(
		attribute.String("prgate.repo", req.Repo),
		attribute.Int("prgate.pr", req.PRNumber),
	)

	as := a.assess(ctx, req)

	span.SetAttributes(
		attribute.String("prgate.risk.level", string(as.Level)),
		attribute.Bool("prgate.risk.degraded", as.Degraded),
	)
	if as.Cause != nil {
		span.RecordError(as.Cause)
		span.SetStatus(codes.Error, as.Cause.Error())
	}
	if riskMetrics.verdicts != nil {
		riskMetrics.verdicts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", string(as.Level)),
			attribute.Bool("degraded", as.Degraded),
		))
	}
	return as
}

func (a *Analyzer) assess(ctx context.Context, req Request) Assessment {
	prompt, err := RenderAnalysisPrompt(a.kb, req, a.cfg.DiffLimit)
	if err != nil {
		return a.degraded(req, err)
	}
	text, err := a.complete(ctx, prompt)
	if err != nil {
		return a.degraded(req, err)
	}
	level := ParseLevel(text)
	a.logger.Info("risk assessed", "repo", req.Repo, "pr", req.PRNumber, "level", level)
	return Assessment{Level: level, Analysis: text}
}

func (a *Analyzer) degraded(req Request, cause error) Assessment {
	a.logger.Warn("risk analysis degraded to fallback",
		"repo", req.Repo, "pr", req.PRNumber, "error", cause)
	return Assessment{
		Level:    Medium,
		Analysis: FallbackAnalysis,
		Degraded: true,
		Cause:    cause,
	}
}

// Transform asks the backend for the full new content of path after
// applying request, with any code fences stripped.
func (a *Analyzer) Transform(ctx context.Context, request, path, content string) (string, error) {
	ctx, span := telemetry.Tracer("github.com/prgate/prgate/risk").Start(ctx, "risk.transform")
	defer span.End()
	span.SetAttributes(attribute.String("prgate.file", path))

	prompt, err := RenderTransformPrompt(request, path, content)
	if err != nil {
		return "", err
	}
	out, err := a.complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	out = StripFences(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty transform output", ErrBackendUnavailable)
	}
	return out, nil
}

func (a *Analyzer) complete(ctx context.Context, prompt string) (string, error) {
	if a.backend == nil {
		return "", fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	out, err := a.backend.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return out, nil
}
