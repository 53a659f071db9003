// Package policy turns a risk score into a user-facing decision.
//
// The engine treats policy as a pluggable boundary: an external webhook in
// production, an in-process threshold evaluator when no webhook is
// configured. Policy failure never blocks a transaction; callers fall back
// to Degraded().
package policy

import (
	"context"
	"errors"
)

// ErrUnavailable signals the policy engine could not produce a decision.
// Callers respond with the degraded decision, never a hard failure.
var ErrUnavailable = errors.New("policy: engine unavailable")

// Decision is the policy verdict for one evaluation.
type Decision struct {
	Decision   string `json:"decision"`
	Message    string `json:"message"`
	AIRequired bool   `json:"aiRequired"`
}

// Evaluator maps a clamped risk score to a decision.
type Evaluator interface {
	Evaluate(ctx context.Context, riskScore int) (*Decision, error)
}

// Degraded is the conservative decision served when the policy engine is
// unreachable. WARN rather than BLOCK: a degraded gate warns but does not
// strand the user, and it never demands an AI explanation it cannot back.
func Degraded() *Decision {
	return &Decision{
		Decision:   "WARN",
		Message:    "Policy engine unavailable",
		AIRequired: false,
	}
}
