package policy

import "context"

// Default tier boundaries, inclusive at the lower bound.
const (
	DefaultBlockAt = 70
	DefaultWarnAt  = 40
)

// Thresholds is the in-process policy evaluator used when no webhook is
// configured. It mirrors the hosted policy engine's tiering.
type Thresholds struct {
	BlockAt int
	WarnAt  int
}

// NewThresholds creates a threshold evaluator with the default boundaries.
func NewThresholds() *Thresholds {
	return &Thresholds{BlockAt: DefaultBlockAt, WarnAt: DefaultWarnAt}
}

func (t *Thresholds) Evaluate(ctx context.Context, riskScore int) (*Decision, error) {
	switch {
	case riskScore >= t.BlockAt:
		return &Decision{
			Decision:   "BLOCK",
			Message:    "This payment looks very risky right now.",
			AIRequired: true,
		}, nil
	case riskScore >= t.WarnAt:
		return &Decision{
			Decision:   "WARN",
			Message:    "This payment may strain your budget.",
			AIRequired: true,
		}, nil
	default:
		return &Decision{
			Decision:   "ALLOW",
			Message:    "You're good to go.",
			AIRequired: false,
		}, nil
	}
}
