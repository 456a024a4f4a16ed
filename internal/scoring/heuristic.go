package scoring

import (
	"math"

	"github.com/mbd888/ledgerisk/internal/ledger"
)

// HeuristicWeights configures the primary-ledger heuristic bands. Band
// adjustments are signed: positive raises risk, negative lowers it.
type HeuristicWeights struct {
	Base float64

	// Collateral-ratio bands, checked in order. An infinite ratio means no
	// debt and takes the NoDebt adjustment alone.
	NoDebt           float64 // ratio = ∞
	WellCollateral   float64 // ratio > 2
	SolidCollateral  float64 // ratio > 1.5
	ThinCollateral   float64 // ratio < 1.2
	ThinCollateralAt float64 // the 1.2 boundary
	WellAt           float64
	SolidAt          float64

	// Utilization bands. The low-utilization adjustment needs an actual
	// borrow; zero utilization is the no-debt case, not a low borrower.
	HighUtilization   float64
	LowUtilization    float64
	HighUtilizationAt float64
	LowUtilizationAt  float64

	VerifiedIdentity float64 // applied when the account's identity checks out
}

// DefaultHeuristicWeights is the tuned production configuration.
var DefaultHeuristicWeights = HeuristicWeights{
	Base: 50,

	NoDebt:           -20,
	WellCollateral:   -15,
	SolidCollateral:  -5,
	ThinCollateral:   15,
	ThinCollateralAt: 1.2,
	WellAt:           2,
	SolidAt:          1.5,

	HighUtilization:   10,
	LowUtilization:    -5,
	HighUtilizationAt: 0.8,
	LowUtilizationAt:  0.3,

	VerifiedIdentity: -10,
}

// PositionScore computes the primary-ledger heuristic risk score for a
// position, returning the score and the factors that fired.
func PositionScore(p ledger.Position, w HeuristicWeights) (int, []Factor) {
	score := w.Base
	var factors []Factor

	apply := func(name string, delta float64) {
		score += delta
		factors = append(factors, Factor{Name: name, Importance: math.Abs(delta) / 100})
	}

	ratio := p.CollateralRatio()
	switch {
	case math.IsInf(ratio, 1):
		apply("no_outstanding_debt", w.NoDebt)
	case ratio > w.WellAt:
		apply("well_collateralized", w.WellCollateral)
	case ratio > w.SolidAt:
		apply("solid_collateral", w.SolidCollateral)
	case ratio < w.ThinCollateralAt:
		apply("thin_collateral", w.ThinCollateral)
	}

	util := p.UtilizationRatio()
	switch {
	case util > w.HighUtilizationAt:
		apply("high_utilization", w.HighUtilization)
	case util > 0 && util < w.LowUtilizationAt:
		apply("low_utilization", w.LowUtilization)
	}

	if p.IdentityVerified {
		apply("verified_identity", w.VerifiedIdentity)
	}

	return int(math.Round(clamp(score))), factors
}
