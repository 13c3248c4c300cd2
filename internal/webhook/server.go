// Package webhook is the HTTP surface: GitHub deliveries, approval links
// from notification emails, and a health check.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/prgate/prgate/internal/event"
	"github.com/prgate/prgate/internal/intent"
	"github.com/prgate/prgate/internal/workflow"
)

// DefaultMaxBodyBytes bounds a webhook delivery.
const DefaultMaxBodyBytes = 5 << 20

// Gateway is what the server hands events and decisions to.
// *gateway.Gateway implements it.
type Gateway interface {
	Dispatch(ctx context.Context, ev event.Event)
	Decide(ctx context.Context, d intent.Decision, dec workflow.Decision) workflow.Result
}

// Server handles HTTP requests for webhook deliveries and approval links.
type Server struct {
	gateway    Gateway
	secret     []byte
	links      Links
	linkActor  string
	maxBody    int64
	decideWait time.Duration
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// ServerConfig holds configuration for the webhook server.
type ServerConfig struct {
	Gateway Gateway
	// Secret verifies X-Hub-Signature-256. Empty disables verification.
	Secret []byte
	// Links verifies approval link signatures.
	Links Links
	// LinkActor is the identity recorded for link decisions.
	LinkActor string
	// MaxBodyBytes bounds a delivery; 0 selects DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// DecisionTimeout bounds a link decision.
	DecisionTimeout time.Duration
	Logger          *slog.Logger
}

// AckResponse is the JSON body returned for deliveries.
type AckResponse struct {
	Status   string `json:"status"`
	Delivery string `json:"delivery,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewServer creates a new webhook server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		gateway:    cfg.Gateway,
		secret:     cfg.Secret,
		links:      cfg.Links,
		linkActor:  cfg.LinkActor,
		maxBody:    cfg.MaxBodyBytes,
		decideWait: cfg.DecisionTimeout,
		logger:     cfg.Logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.linkActor == "" {
		s.linkActor = "email-link"
	}
	if s.decideWait <= 0 {
		s.decideWait = 5 * time.Minute
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "webhook")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/webhook/github", s.handleGitHub)
	r.Get("/approvals", s.handleApprovalLink)
	r.Post("/approvals", s.handleApproval)
	r.Get("/health", s.handleHealth)
	s.router = r

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.decideWait + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleGitHub handles POST /webhook/github. Every delivery is
// acknowledged; only a bad signature is refused.
func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}
	kind := r.Header.Get("X-GitHub-Event")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.logger.Warn("read delivery failed", "delivery", delivery, "error", err)
		s.writeJSON(w, http.StatusOK, AckResponse{Status: "ignored", Delivery: delivery, Reason: "unreadable body"})
		return
	}

	if len(s.secret) > 0 && !VerifySignature(s.secret, body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("signature mismatch", "delivery", delivery, "event", kind)
		s.writeJSON(w, http.StatusUnauthorized, AckResponse{Status: "rejected", Delivery: delivery, Error: "invalid signature"})
		return
	}

	ev, err := event.Parse(kind, delivery, body)
	if err != nil {
		s.logger.Info("delivery ignored", "delivery", delivery, "event", kind, "error", err)
		s.writeJSON(w, http.StatusOK, AckResponse{Status: "ignored", Delivery: delivery, Reason: err.Error()})
		return
	}
	if ev.Kind == event.Ping {
		s.writeJSON(w, http.StatusOK, AckResponse{Status: "ignored", Delivery: delivery, Reason: "ping"})
		return
	}

	s.gateway.Dispatch(r.Context(), ev)
	s.writeJSON(w, http.StatusAccepted, AckResponse{Status: "accepted", Delivery: delivery})
}

// maxFormBytes bounds a decision form submission.
const maxFormBytes = 16 << 10

var approvalPage = template.Must(template.New("approval").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; max-width: 600px; margin: 40px auto;">
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
{{- if .Repo}}
<p><strong>Repository:</strong> {{.Repo}}<br><strong>Pull request:</strong> #{{.PRNumber}}</p>
{{- end}}
{{- if .Confirm}}
<form method="post" action="approvals">
<input type="hidden" name="decision" value="{{.Decision}}">
<input type="hidden" name="repo" value="{{.Repo}}">
<input type="hidden" name="pr_num" value="{{.PRNumber}}">
<input type="hidden" name="sig" value="{{.Sig}}">
<button type="submit" style="padding: 10px 20px; font-size: 16px;">Confirm: {{.Decision}}</button>
</form>
{{- end}}
{{- if .State}}
<p><strong>Outcome:</strong> {{.State}}</p>
{{- end}}
</body>
</html>
`))

type approvalView struct {
	Title    string
	Message  string
	Repo     string
	PRNumber int
	State    string
	// Confirm renders the form that submits the decision.
	Confirm  bool
	Decision intent.Decision
	Sig      string
}

// approvalRequest is a decision link's parameters.
type approvalRequest struct {
	decision intent.Decision
	repo     string
	number   int
	sig      string
}

// parseApproval validates link parameters and the link signature. On
// failure it writes the error page and returns false.
func (s *Server) parseApproval(w http.ResponseWriter, v url.Values) (approvalRequest, bool) {
	decision, ok := ParseDecision(v.Get("decision"))
	repo := v.Get("repo")
	number, err := strconv.Atoi(v.Get("pr_num"))
	if !ok || repo == "" || err != nil || number <= 0 {
		s.writePage(w, http.StatusBadRequest, approvalView{
			Title:   "Invalid approval link",
			Message: "The link is missing a decision, repository or pull request number.",
		})
		return approvalRequest{}, false
	}

	req := approvalRequest{decision: decision, repo: repo, number: number, sig: v.Get("sig")}
	if err := s.links.Verify(decision, repo, number, req.sig); err != nil {
		s.logger.Warn("approval link rejected", "repo", repo, "pr", number, "error", err)
		s.writePage(w, http.StatusForbidden, approvalView{
			Title:   "Approval link not accepted",
			Message: err.Error(),
		})
		return approvalRequest{}, false
	}
	return req, true
}

// handleApprovalLink handles GET /approvals from notification links. It
// only renders a confirmation form: mail scanners prefetch links, so a GET
// never records a decision.
func (s *Server) handleApprovalLink(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseApproval(w, r.URL.Query())
	if !ok {
		return
	}
	s.writePage(w, http.StatusOK, approvalView{
		Title:    "Confirm decision",
		Message:  "Submit to record this decision on the pull request.",
		Repo:     req.repo,
		PRNumber: req.number,
		Confirm:  true,
		Decision: req.decision,
		Sig:      req.sig,
	})
}

// handleApproval handles POST /approvals from the confirmation form. The
// decision runs synchronously so the page can show the outcome.
func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.writePage(w, http.StatusBadRequest, approvalView{
			Title:   "Invalid approval form",
			Message: "The decision form could not be read.",
		})
		return
	}
	req, ok := s.parseApproval(w, r.PostForm)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.decideWait)
	defer cancel()
	res := s.gateway.Decide(ctx, req.decision, workflow.Decision{
		Repo:     req.repo,
		PRNumber: req.number,
		Message:  string(req.decision) + " by " + s.linkActor,
		Actor:    s.linkActor,
	})

	view := approvalView{
		Title:    "Decision recorded",
		Message:  "Your decision (" + string(req.decision) + ") was submitted.",
		Repo:     req.repo,
		PRNumber: req.number,
		State:    string(res.State),
	}
	switch {
	case res.Duplicate:
		view.Message = "This request was already processed. Nothing was changed."
	case res.Failure != "":
		view.Title = "Decision could not be completed"
		view.Message = res.Failure
	}
	s.writePage(w, http.StatusOK, view)
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writePage(w http.ResponseWriter, status int, v approvalView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := approvalPage.Execute(w, v); err != nil {
		s.logger.Warn("render approval page failed", "error", err)
	}
}
