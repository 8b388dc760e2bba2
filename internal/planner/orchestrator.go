// Package planner runs one planning round at a time for a session: it ranks
// the page, frames the history, asks the model and records the outcome.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/config"
	"github.com/xkilldash9x/navpilot/internal/decision"
	"github.com/xkilldash9x/navpilot/internal/dom"
	"github.com/xkilldash9x/navpilot/internal/history"
	"github.com/xkilldash9x/navpilot/internal/llmutil"
	"github.com/xkilldash9x/navpilot/internal/observability"
	"github.com/xkilldash9x/navpilot/internal/session"
)

const (
	outcomeComplete      = "complete"
	outcomeAction        = "action"
	outcomeNone          = "none"
	outcomeMaxIterations = "max_iterations"
	outcomeModelError    = "model_error"

	noFurtherActions = "No further actions required"
)

// Outcome is the answer to one PlanNext call.
type Outcome struct {
	Decision  decision.Decision `json:"action_plan"`
	Iteration int               `json:"iteration"`
}

// Orchestrator coordinates the session manager and the model. Every
// operation on a session runs under that session's lock.
type Orchestrator struct {
	sessions *session.Manager
	llm      schemas.LLMClient
	rules    *RuleSet
	ranker   *dom.RankCache
	cfg      config.PlannerConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records decision and ranking metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRankCache shares a rank cache between orchestrators.
func WithRankCache(c *dom.RankCache) Option {
	return func(o *Orchestrator) { o.ranker = c }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New builds an orchestrator. Rule conditions are compiled here.
func New(sessions *session.Manager, llm schemas.LLMClient, cfg config.PlannerConfig, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if sessions == nil || llm == nil {
		return nil, errors.New("planner requires a session manager and an LLM client")
	}
	rules, err := NewRuleSet(RulesFromConfig(cfg.Rules))
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		sessions: sessions,
		llm:      llm,
		rules:    rules,
		cfg:      cfg,
		logger:   logger.Named("planner"),
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ranker == nil {
		o.ranker = dom.NewRankCache(cfg.RankCacheTTL, o.logger)
	}
	return o, nil
}

// CreateSession starts a new session in PLANNING.
func (o *Orchestrator) CreateSession(ctx context.Context, goal, url string) (string, error) {
	return o.sessions.Create(ctx, goal, url)
}

// GetSession returns a copy of the session.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return o.sessions.Get(ctx, id)
}

// CompleteSession moves the session to a terminal status.
func (o *Orchestrator) CompleteSession(ctx context.Context, id string, success bool, message string) error {
	unlock := o.sessions.Lock(id)
	defer unlock()
	return o.sessions.Complete(ctx, id, success, message)
}

// IngestDOM stores snap and asks the model for an initial analysis. Model
// failures never surface as errors; they yield the fallback analysis.
func (o *Orchestrator) IngestDOM(ctx context.Context, id string, snap *dom.Snapshot) (decision.Analysis, error) {
	if snap == nil {
		return decision.Analysis{}, ErrSnapshotRequired
	}

	ctx, span := o.tracer.Start(ctx, "planner.ingest_dom", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("dom.elements", len(snap.Elements)),
	))
	defer span.End()

	unlock := o.sessions.Lock(id)
	defer unlock()

	if err := o.sessions.UpdateDOM(ctx, id, snap); err != nil {
		return decision.Analysis{}, o.fail(span, err)
	}
	s, err := o.sessions.Get(ctx, id)
	if err != nil {
		return decision.Analysis{}, o.fail(span, err)
	}
	o.logger.Info("Received DOM", zap.String("session_id", id), zap.Int("elements", len(snap.Elements)))

	analysis := o.analyze(ctx, s.Goal, snap)
	if err := o.sessions.UpdateAnalysis(ctx, id, &analysis); err != nil {
		return decision.Analysis{}, o.fail(span, err)
	}
	span.SetAttributes(attribute.Float64("analysis.confidence", analysis.Confidence))
	return analysis, nil
}

func (o *Orchestrator) analyze(ctx context.Context, goal string, snap *dom.Snapshot) decision.Analysis {
	candidates := o.rank(snap, goal)
	prompt, err := analysisPrompt(goal, snap, candidates)
	if err != nil {
		o.logger.Error("Failed to build analysis prompt", zap.Error(err))
		return decision.FallbackAnalysis()
	}

	raw, err := o.generate(ctx, schemas.TierPowerful, analysisSystemPrompt, prompt)
	if err != nil {
		o.logger.Warn("Analysis failed, using fallback", zap.Error(err))
		return decision.FallbackAnalysis()
	}

	analysis := decision.AnalysisFromMap(raw)
	if analysis.FirstAction != nil {
		verdict := action.Check(*analysis.FirstAction)
		normalized := verdict.Action
		analysis.FirstAction = &normalized
		analysis.Validation = &verdict
	}
	o.logger.Info("Analysis complete", zap.Float64("confidence", analysis.Confidence))
	return analysis
}

// PlanNext runs one planning round. previous, when given, is attached to the
// newest action record; snap, when given, replaces the stored snapshot.
//
// A model failure returns the fallback decision together with a *ModelError
// and leaves the session status untouched.
func (o *Orchestrator) PlanNext(ctx context.Context, id string, snap *dom.Snapshot, previous *session.ActionResult) (Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "planner.plan_next", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	unlock := o.sessions.Lock(id)
	defer unlock()

	if _, err := o.sessions.Get(ctx, id); err != nil {
		return Outcome{}, o.fail(span, err)
	}
	if previous != nil {
		if err := o.sessions.UpdateLastActionResult(ctx, id, previous); err != nil {
			return Outcome{}, o.fail(span, err)
		}
	}
	if snap != nil {
		if err := o.sessions.UpdateDOM(ctx, id, snap); err != nil {
			return Outcome{}, o.fail(span, err)
		}
	}

	s, err := o.sessions.Get(ctx, id)
	if err != nil {
		return Outcome{}, o.fail(span, err)
	}
	if s.DOM == nil {
		return Outcome{}, o.fail(span, ErrSnapshotRequired)
	}
	span.SetAttributes(attribute.Int("session.iteration", s.Iteration))

	if s.Iteration >= s.MaxIterations {
		o.metrics.Decision(outcomeMaxIterations)
		o.logger.Info("Maximum iterations reached", zap.String("session_id", id), zap.Int("iteration", s.Iteration))
		return Outcome{Decision: decision.MaxIterationsDecision(), Iteration: s.Iteration}, nil
	}

	digest := history.Summarize(s.Actions, previous)
	d, err := o.decide(ctx, s, digest)
	if err != nil {
		o.metrics.Decision(outcomeModelError)
		var merr *ModelError
		if errors.As(err, &merr) {
			span.SetAttributes(attribute.Bool("planner.transient", merr.Transient))
		}
		return Outcome{Decision: d, Iteration: s.Iteration}, o.fail(span, err)
	}

	if d.Empty() {
		d = o.settleEmpty(ctx, s, digest, d)
	}

	iteration := s.Iteration
	if d.NextAction != nil {
		verdict := action.Check(*d.NextAction)
		normalized := verdict.Action
		d.NextAction = &normalized
		d.Validation = &verdict
		if !verdict.OK {
			o.logger.Warn("Model proposed an invalid action",
				zap.String("session_id", id), zap.String("code", string(verdict.Code)), zap.String("error", verdict.Error))
		}
		if _, err := o.sessions.AddAction(ctx, id, normalized); err != nil {
			return Outcome{}, o.fail(span, err)
		}
		if normalized.Type != action.KindScroll {
			iteration++
		}
	}

	status := session.StatusExecuting
	if d.Complete {
		status = session.StatusCompleted
	}
	if err := o.sessions.SetStatus(ctx, id, status); err != nil {
		return Outcome{}, o.fail(span, err)
	}

	outcome := outcomeNone
	nextType := "none"
	switch {
	case d.Complete:
		outcome = outcomeComplete
	case d.NextAction != nil:
		outcome = outcomeAction
		nextType = string(d.NextAction.Type)
	}
	o.metrics.Decision(outcome)
	span.SetAttributes(attribute.String("planner.outcome", outcome))
	o.logger.Info("Next action decided",
		zap.String("session_id", id),
		zap.String("next_action", nextType),
		zap.Bool("complete", d.Complete),
		zap.Float64("confidence", d.Confidence),
	)

	return Outcome{Decision: d, Iteration: iteration}, nil
}

// decide asks the model for the next decision.
func (o *Orchestrator) decide(ctx context.Context, s *session.Session, digest history.Digest) (decision.Decision, error) {
	env := buildRuleEnv(s, digest, s.DOM)
	rules, err := o.rules.Applicable(env)
	if err != nil {
		o.logger.Warn("Some rule conditions failed to evaluate", zap.Error(err))
	}

	candidates := o.rank(s.DOM, s.Goal)
	prompt, err := nextActionPrompt(nextActionInput{
		session:    s,
		snapshot:   s.DOM,
		digest:     digest,
		candidates: candidates,
		shown:      o.cfg.TopCandidates,
		rules:      rules,
	})
	if err != nil {
		return decision.FallbackDecision(), &ModelError{Transient: false, Err: err}
	}

	raw, err := o.generate(ctx, schemas.TierPowerful, nextActionSystemPrompt, prompt)
	if err != nil {
		o.logger.Error("Planning call failed", zap.String("session_id", s.ID), zap.Error(err))
		return decision.FallbackDecision(), &ModelError{Transient: true, Err: err}
	}

	d := decision.DecisionFromMap(raw)
	if d.Error != "" {
		o.logger.Error("Model returned an error marker", zap.String("session_id", s.ID), zap.String("error", d.Error))
		return d, &ModelError{Transient: d.Transient, Err: errors.New(d.Error)}
	}
	return d, nil
}

// settleEmpty resolves a decision with neither completion nor an action: the
// completion probe first, then the assume-complete policy. Failures here are
// logged and leave d as it was.
func (o *Orchestrator) settleEmpty(ctx context.Context, s *session.Session, digest history.Digest, d decision.Decision) decision.Decision {
	check, err := o.checkCompletion(ctx, s, digest)
	if err != nil {
		o.logger.Warn("Completion check failed", zap.String("session_id", s.ID), zap.Error(err))
	}

	switch {
	case err == nil && check.Complete:
		d.Complete = true
		reason := check.Reasoning
		if reason == "" {
			reason = strings.Join(check.Evidence, "; ")
		}
		if reason == "" {
			reason = d.Reason
		}
		if reason == "" {
			reason = noFurtherActions
		}
		d.Reason = reason
		d.Confidence = check.Confidence
	case o.cfg.AssumeCompleteOnSuccess && digest.Previous.Outcome == history.OutcomeSucceeded:
		d.Complete = true
		if d.Reason == "" {
			d.Reason = assumedCompletionReason(digest.Previous)
		}
		if d.Confidence == 0 {
			d.Confidence = o.cfg.DefaultConfidence
		}
		o.logger.Info("Assuming completion after successful action", zap.String("session_id", s.ID))
	}
	return d
}

func assumedCompletionReason(f history.Framing) string {
	kind := strings.ToUpper(f.Action)
	if kind == "" {
		kind = "ACTION"
	}
	target := f.Target
	if target == "" {
		target = "target"
	}
	return fmt.Sprintf("Last action succeeded (%s on %s). No further steps required.", kind, target)
}

func (o *Orchestrator) checkCompletion(ctx context.Context, s *session.Session, digest history.Digest) (decision.CompletionCheck, error) {
	raw, err := o.generate(ctx, schemas.TierFast, completionSystemPrompt, completionPrompt(s, digest))
	if err != nil {
		return decision.FallbackCompletionCheck(), err
	}
	check := decision.CompletionFromMap(raw)
	o.logger.Info("Completion check", zap.String("session_id", s.ID), zap.Bool("complete", check.Complete))
	return check, nil
}

// generate performs one bounded model call and parses its JSON object.
func (o *Orchestrator) generate(ctx context.Context, tier schemas.ModelTier, system, user string) (map[string]any, error) {
	if o.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ModelTimeout)
		defer cancel()
	}

	resp, err := o.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         tier,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	})
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}

	raw, err := llmutil.ParseJSONResponse[map[string]any](resp)
	if err != nil {
		o.logger.Warn("Failed to parse model response", zap.String("response", llmutil.Truncate(resp, 500)), zap.Error(err))
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}
	if *raw == nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", llmutil.ErrNoJSON)
	}
	return *raw, nil
}

func (o *Orchestrator) rank(snap *dom.Snapshot, goal string) []dom.Candidate {
	candidates := o.ranker.Rank(snap, goal)
	o.metrics.CandidatesRanked(len(candidates))
	return candidates
}

func (o *Orchestrator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
