// Package engine orchestrates a risk evaluation end to end: trust refresh,
// scoring, policy, and explanation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/paypilot/internal/explain"
	"github.com/mbd888/paypilot/internal/metrics"
	"github.com/mbd888/paypilot/internal/policy"
	"github.com/mbd888/paypilot/internal/risk"
	"github.com/mbd888/paypilot/internal/traces"
	"github.com/mbd888/paypilot/internal/trust"
	"github.com/mbd888/paypilot/internal/validation"
)

// Request is one proposed transaction to evaluate. An empty UserID is an
// anonymous evaluation: scored with default trust, nothing persisted.
type Request struct {
	UserID     string  `json:"userId"`
	Amount     float64 `json:"amount"`
	Balance    float64 `json:"balance"`
	Category   string  `json:"category"`
	DaysToRent int     `json:"daysToRent"`
}

// Evaluation is the full result returned to clients. Explanation is set only
// when the policy required one; Degraded marks decisions served without the
// policy engine.
type Evaluation struct {
	RiskScore   int      `json:"riskScore"`
	Reasons     []string `json:"reasons"`
	Decision    string   `json:"decision"`
	Message     string   `json:"message"`
	AIRequired  bool     `json:"aiRequired"`
	Explanation *string  `json:"explanation,omitempty"`
	Degraded    bool     `json:"degraded,omitempty"`
}

// Engine wires the scoring pipeline together. The ledger is the only stateful
// stage; scorer, policy, and explainer are all replaceable.
type Engine struct {
	ledger         *trust.Ledger
	scorer         *risk.Scorer
	policy         policy.Evaluator
	explainer      explain.Explainer
	policyTimeout  time.Duration
	explainTimeout time.Duration
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithExplainer sets the AI explainer. Without one, AI-required decisions
// carry the static fallback text.
func WithExplainer(e explain.Explainer) Option {
	return func(eng *Engine) { eng.explainer = e }
}

// WithPolicyTimeout bounds the policy call.
func WithPolicyTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.policyTimeout = d }
}

// WithExplainTimeout bounds the explanation call.
func WithExplainTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.explainTimeout = d }
}

// New creates an evaluation engine.
func New(ledger *trust.Ledger, pol policy.Evaluator, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		ledger:         ledger,
		scorer:         risk.NewScorer(),
		policy:         pol,
		policyTimeout:  5 * time.Second,
		explainTimeout: 10 * time.Second,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the full pipeline for one transaction.
//
// Trust refresh and scoring must succeed; policy and explanation degrade
// gracefully. The decision returned on policy failure is the conservative
// degraded WARN, flagged so clients can tell it apart from a scored WARN.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	ctx, span := traces.StartSpan(ctx, "engine.Evaluate", traces.UserID(req.UserID))
	defer span.End()

	if errs := validation.Validate(
		validation.FiniteNonNegative("amount", req.Amount),
		validation.FiniteNonNegative("balance", req.Balance),
	); len(errs) > 0 {
		return nil, errs
	}
	if req.UserID != "" && !validation.IsValidUserID(req.UserID) {
		return nil, validation.Validate(validation.ValidUserID("userId", req.UserID))
	}

	// Anonymous evaluations score against a clean slate and touch no state.
	trustScore := trust.DefaultScore
	overrideCount := 0
	if req.UserID != "" {
		u, err := e.ledger.ApplyRecovery(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("refresh trust: %w", err)
		}
		if u != nil {
			trustScore = u.TrustScore
			overrideCount = len(u.Overrides)
		}
	}

	result := e.scorer.Score(risk.Input{
		Amount:        req.Amount,
		Balance:       req.Balance,
		Category:      req.Category,
		DaysToRent:    req.DaysToRent,
		OverrideCount: overrideCount,
		TrustScore:    trustScore,
	})
	span.SetAttributes(traces.RiskScore(result.Score))

	eval := &Evaluation{
		RiskScore: result.Score,
		Reasons:   result.Reasons,
	}

	decision, err := e.evaluatePolicy(ctx, result.Score)
	if err != nil {
		e.logger.Warn("policy degraded", "user_id", req.UserID, "risk_score", result.Score, "error", err)
		decision = policy.Degraded()
		eval.Degraded = true
		metrics.DegradedEvaluationsTotal.Inc()
	}
	eval.Decision = decision.Decision
	eval.Message = decision.Message
	eval.AIRequired = decision.AIRequired
	span.SetAttributes(traces.DecisionAttr(eval.Decision), traces.Degraded(eval.Degraded))

	if eval.AIRequired {
		text := e.explainOrFallback(ctx, explain.Request{
			RiskScore:     result.Score,
			Reasons:       result.Reasons,
			TrustScore:    trustScore,
			OverrideCount: overrideCount,
			Decision:      eval.Decision,
		})
		eval.Explanation = &text
	}

	metrics.EvaluationsTotal.WithLabelValues(eval.Decision).Inc()
	e.logger.Info("evaluation completed",
		"user_id", req.UserID,
		"risk_score", eval.RiskScore,
		"decision", eval.Decision,
		"degraded", eval.Degraded,
	)
	return eval, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, score int) (*policy.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, e.policyTimeout)
	defer cancel()
	return e.policy.Evaluate(ctx, score)
}

// explainOrFallback never fails: a missing, slow, or erroring explainer
// degrades to the static fallback text.
func (e *Engine) explainOrFallback(ctx context.Context, req explain.Request) string {
	if e.explainer == nil {
		metrics.ExplainerFallbacksTotal.Inc()
		return explain.Fallback
	}

	ctx, cancel := context.WithTimeout(ctx, e.explainTimeout)
	defer cancel()

	text, err := e.explainer.Explain(ctx, req)
	if err != nil {
		e.logger.Warn("explainer fallback", "error", err)
		metrics.ExplainerFallbacksTotal.Inc()
		return explain.Fallback
	}
	return text
}

// RecordOverride persists a user's decision to proceed anyway. Unlike
// evaluation, this path requires a user and creates one on first use.
func (e *Engine) RecordOverride(ctx context.Context, userID string, riskScore int, decision string) (*trust.User, error) {
	ctx, span := traces.StartSpan(ctx, "engine.RecordOverride",
		traces.UserID(userID), traces.RiskScore(riskScore))
	defer span.End()

	if errs := validation.Validate(
		validation.Required("userId", userID),
		validation.ValidUserID("userId", userID),
		validation.ScoreInRange("riskScore", riskScore),
	); len(errs) > 0 {
		return nil, errs
	}

	return e.ledger.RecordOverride(ctx, userID, riskScore, decision)
}

// GetProfile returns a user's current trust state with history.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*trust.User, error) {
	return e.ledger.Get(ctx, userID)
}
