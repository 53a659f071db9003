// Package explain produces plain-language explanations for risky decisions.
//
// Explanations are advisory. A failed or slow explainer degrades to the
// static Fallback text; it never changes a decision and never fails an
// evaluation.
package explain

import "context"

// Fallback is served whenever no generated explanation is available.
const Fallback = "This transaction carries financial risk based on your recent activity."

// Request carries everything the explainer may reference. Only score,
// reasons, and history go to the model; no amounts or balances leave the
// service.
type Request struct {
	RiskScore     int
	Reasons       []string
	TrustScore    int
	OverrideCount int
	Decision      string
}

// Explainer generates a short user-facing explanation for a decision.
type Explainer interface {
	Explain(ctx context.Context, req Request) (string, error)
}
