// Package risk implements pre-transaction risk scoring for PayPilot.
//
// A proposed spend is evaluated against six fixed-order rules covering
// balance pressure, discretionary categories, rent proximity, and the user's
// override history. Scores range from 0 (safe) to 100 (high risk) and map to
// an ALLOW/WARN/BLOCK tier. Scoring is pure: no I/O, no clock, no state.
package risk

// Decision is the tier derived from a clamped risk score.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionWarn  Decision = "WARN"
	DecisionBlock Decision = "BLOCK"
)

// Default tier thresholds, inclusive at the lower bound.
const (
	DefaultBlockThreshold = 70
	DefaultWarnThreshold  = 40
)

// Input carries the transaction plus the behavioral snapshot to score.
// Callers must reject NaN and negative amounts before scoring; the scorer
// assumes well-formed numbers.
type Input struct {
	Amount        float64
	Balance       float64
	Category      string
	DaysToRent    int
	OverrideCount int
	TrustScore    int
}

// Result is the outcome of scoring a single transaction. Reasons appear in
// rule order and are part of the API surface consumed by clients and the
// explainer.
type Result struct {
	Score    int      `json:"riskScore"`
	Reasons  []string `json:"reasons"`
	Decision Decision `json:"decision"`
}
