package risk

// Rule reason strings. Order here is the order reasons appear in results.
const (
	ReasonHighSpend       = "High spend compared to balance"
	ReasonDiscretionary   = "Discretionary spending category"
	ReasonRentProximity   = "Payment close to rent due date"
	ReasonRepeatOverrides = "Multiple recent overrides"
	ReasonLowTrust        = "Low trust due to past overrides"
	ReasonHighTrust       = "High trust due to responsible past behavior"
)

// Rule point values.
const (
	pointsHighSpend       = 25
	pointsDiscretionary   = 15
	pointsRentProximity   = 30
	pointsRepeatOverrides = 20
	pointsLowTrust        = 10
	pointsHighTrust       = -5

	// Rule trigger boundaries.
	balanceShareLimit = 0.3
	rentWindowDays    = 7
	lowTrustBelow     = 50
	highTrustAbove    = 80
)

// Scorer turns a transaction snapshot into a score, reasons, and tier.
type Scorer struct {
	blockThreshold int
	warnThreshold  int
}

// NewScorer creates a scorer with the default tier thresholds.
func NewScorer() *Scorer {
	return &Scorer{
		blockThreshold: DefaultBlockThreshold,
		warnThreshold:  DefaultWarnThreshold,
	}
}

// WithBlockThreshold overrides the default block threshold.
func (s *Scorer) WithBlockThreshold(t int) *Scorer {
	s.blockThreshold = t
	return s
}

// WithWarnThreshold overrides the default warn threshold.
func (s *Scorer) WithWarnThreshold(t int) *Scorer {
	s.warnThreshold = t
	return s
}

// Score evaluates a transaction. Each rule fires independently and the rules
// are additive; the reason list preserves rule order so that identical inputs
// always produce identical output.
//
// Note the balance rule compares amount > 0.3*balance rather than dividing,
// so a zero balance with a positive amount still fires without a division.
func (s *Scorer) Score(in Input) Result {
	score := 0
	reasons := make([]string, 0, 6)

	if in.Amount > balanceShareLimit*in.Balance {
		score += pointsHighSpend
		reasons = append(reasons, ReasonHighSpend)
	}

	if in.Category == "shopping" {
		score += pointsDiscretionary
		reasons = append(reasons, ReasonDiscretionary)
	}

	if in.DaysToRent <= rentWindowDays {
		score += pointsRentProximity
		reasons = append(reasons, ReasonRentProximity)
	}

	if in.OverrideCount > 1 {
		score += pointsRepeatOverrides
		reasons = append(reasons, ReasonRepeatOverrides)
	}

	if in.TrustScore < lowTrustBelow {
		score += pointsLowTrust
		reasons = append(reasons, ReasonLowTrust)
	}

	if in.TrustScore > highTrustAbove {
		score += pointsHighTrust
		reasons = append(reasons, ReasonHighTrust)
	}

	// Clamp to [0, 100]
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	decision := DecisionAllow
	if score >= s.blockThreshold {
		decision = DecisionBlock
	} else if score >= s.warnThreshold {
		decision = DecisionWarn
	}

	return Result{
		Score:    score,
		Reasons:  reasons,
		Decision: decision,
	}
}
