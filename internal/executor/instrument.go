package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/prgate/prgate/internal/continuation"
	"github.com/prgate/prgate/internal/telemetry"
)

const hostScopeName = "github.com/prgate/prgate/executor"

// InstrumentedHost wraps a Host with OTel tracing and metrics. Every method
// gets a client span and is counted in prgate.host.* metrics.
type InstrumentedHost struct {
	inner  Host
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// Instrument returns h decorated with OTel instrumentation.
// When telemetry is disabled, h is returned as-is.
func Instrument(h Host) Host {
	if !telemetry.Enabled() {
		return h
	}
	m := telemetry.Meter(hostScopeName)
	ops, _ := m.Int64Counter("prgate.host.operations",
		metric.WithDescription("Hosting API operations executed"),
	)
	dur, _ := m.Float64Histogram("prgate.host.operation.duration",
		metric.WithDescription("Hosting API operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("prgate.host.errors",
		metric.WithDescription("Hosting API operation errors"),
	)
	return &InstrumentedHost{
		inner:  h,
		tracer: telemetry.Tracer(hostScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (h *InstrumentedHost) op(ctx context.Context, name, repo string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time, []attribute.KeyValue) {
	all := append([]attribute.KeyValue{
		attribute.String("prgate.host.operation", name),
		attribute.String("prgate.repo", repo),
	}, attrs...)
	ctx, span := h.tracer.Start(ctx, "host."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	h.ops.Add(ctx, 1, metric.WithAttributes(all[0]))
	return ctx, span, time.Now(), all
}

func (h *InstrumentedHost) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs []attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	h.dur.Record(ctx, ms, metric.WithAttributes(attrs[0]))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.errs.Add(ctx, 1, metric.WithAttributes(attrs[0]))
	}
	span.End()
}

func (h *InstrumentedHost) GetPullRequest(ctx context.Context, repo string, number int) (PullRequest, error) {
	ctx, span, t, attrs := h.op(ctx, "GetPullRequest", repo, attribute.Int("prgate.pr", number))
	v, err := h.inner.GetPullRequest(ctx, repo, number)
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) GetDiff(ctx context.Context, repo string, number int) (string, error) {
	ctx, span, t, attrs := h.op(ctx, "GetDiff", repo, attribute.Int("prgate.pr", number))
	v, err := h.inner.GetDiff(ctx, repo, number)
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) FindOpenPullRequest(ctx context.Context, repo, head string) (int, bool, error) {
	ctx, span, t, attrs := h.op(ctx, "FindOpenPullRequest", repo, attribute.String("prgate.branch", head))
	n, ok, err := h.inner.FindOpenPullRequest(ctx, repo, head)
	h.done(ctx, span, t, err, attrs)
	return n, ok, err
}

func (h *InstrumentedHost) CreatePullRequest(ctx context.Context, repo, title, head, base, body string) (int, error) {
	ctx, span, t, attrs := h.op(ctx, "CreatePullRequest", repo, attribute.String("prgate.branch", head))
	n, err := h.inner.CreatePullRequest(ctx, repo, title, head, base, body)
	h.done(ctx, span, t, err, attrs)
	return n, err
}

func (h *InstrumentedHost) MergePullRequest(ctx context.Context, repo string, number int, message string) (MergeResult, error) {
	ctx, span, t, attrs := h.op(ctx, "MergePullRequest", repo, attribute.Int("prgate.pr", number))
	v, err := h.inner.MergePullRequest(ctx, repo, number, message)
	span.SetAttributes(attribute.Bool("prgate.merged", v.Merged))
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) SetPullRequestState(ctx context.Context, repo string, number int, state PRState) error {
	ctx, span, t, attrs := h.op(ctx, "SetPullRequestState", repo,
		attribute.Int("prgate.pr", number), attribute.String("prgate.pr.state", string(state)))
	err := h.inner.SetPullRequestState(ctx, repo, number, state)
	h.done(ctx, span, t, err, attrs)
	return err
}

func (h *InstrumentedHost) ListComments(ctx context.Context, repo string, number int) ([]continuation.Comment, error) {
	ctx, span, t, attrs := h.op(ctx, "ListComments", repo, attribute.Int("prgate.pr", number))
	v, err := h.inner.ListComments(ctx, repo, number)
	span.SetAttributes(attribute.Int("prgate.comment.count", len(v)))
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) PostComment(ctx context.Context, repo string, number int, body string) error {
	ctx, span, t, attrs := h.op(ctx, "PostComment", repo, attribute.Int("prgate.pr", number))
	err := h.inner.PostComment(ctx, repo, number, body)
	h.done(ctx, span, t, err, attrs)
	return err
}

func (h *InstrumentedHost) DefaultBranch(ctx context.Context, repo string) (string, error) {
	ctx, span, t, attrs := h.op(ctx, "DefaultBranch", repo)
	v, err := h.inner.DefaultBranch(ctx, repo)
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) ListBranches(ctx context.Context, repo string) ([]string, error) {
	ctx, span, t, attrs := h.op(ctx, "ListBranches", repo)
	v, err := h.inner.ListBranches(ctx, repo)
	span.SetAttributes(attribute.Int("prgate.branch.count", len(v)))
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) BranchExists(ctx context.Context, repo, name string) (bool, error) {
	ctx, span, t, attrs := h.op(ctx, "BranchExists", repo, attribute.String("prgate.branch", name))
	v, err := h.inner.BranchExists(ctx, repo, name)
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) CreateBranch(ctx context.Context, repo, name, base string) (Outcome, error) {
	ctx, span, t, attrs := h.op(ctx, "CreateBranch", repo, attribute.String("prgate.branch", name))
	v, err := h.inner.CreateBranch(ctx, repo, name, base)
	span.SetAttributes(attribute.String("prgate.outcome", string(v)))
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) DeleteBranch(ctx context.Context, repo, name string) (Outcome, error) {
	ctx, span, t, attrs := h.op(ctx, "DeleteBranch", repo, attribute.String("prgate.branch", name))
	v, err := h.inner.DeleteBranch(ctx, repo, name)
	span.SetAttributes(attribute.String("prgate.outcome", string(v)))
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) GetFile(ctx context.Context, repo, path, ref string) (File, error) {
	ctx, span, t, attrs := h.op(ctx, "GetFile", repo,
		attribute.String("prgate.file", path), attribute.String("prgate.branch", ref))
	v, err := h.inner.GetFile(ctx, repo, path, ref)
	h.done(ctx, span, t, err, attrs)
	return v, err
}

func (h *InstrumentedHost) UpdateFile(ctx context.Context, repo string, update FileUpdate) error {
	ctx, span, t, attrs := h.op(ctx, "UpdateFile", repo,
		attribute.String("prgate.file", update.Path), attribute.String("prgate.branch", update.Branch))
	err := h.inner.UpdateFile(ctx, repo, update)
	h.done(ctx, span, t, err, attrs)
	return err
}

func (h *InstrumentedHost) SetCommitStatus(ctx context.Context, repo, sha string, state CommitState, description string) error {
	ctx, span, t, attrs := h.op(ctx, "SetCommitStatus", repo, attribute.String("prgate.status", string(state)))
	err := h.inner.SetCommitStatus(ctx, repo, sha, state, description)
	h.done(ctx, span, t, err, attrs)
	return err
}
