// Package reputation derives a 0-100 reputation score for an account purely
// from its secondary-ledger record history. The score is rule-based, not
// learned: a neutral base plus volume and frequency bonuses plus signed
// trust-indicator contributions extracted from known record patterns.
//
// Indicator weights are deliberately configuration, not constants. They were
// hand-tuned and carry no derivation; operators must be able to recalibrate
// them without a rebuild.
package reputation

import (
	"fmt"
	"math"
	"time"

	"github.com/mbd888/ledgerisk/internal/records"
)

// Indicator kinds produced by the scorer.
const (
	IndicatorVerifiedIdentity = "verified_identity"
	IndicatorRepaymentHistory = "repayment_history"
	IndicatorCollateralGrowth = "collateral_growth"
	IndicatorCompletedLoans   = "completed_loans"
	IndicatorActiveLoanLoad   = "active_loan_load"
)

// TrustIndicator is a signed, weighted observation extracted from the record
// set. Weights are additive contributions to the reputation score (scaled by
// 100), not independently validated facts; callers treat them as advisory.
type TrustIndicator struct {
	Kind   string  `json:"kind"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Source string  `json:"source"`
}

// Weights configures every tunable constant in the scorer. All defaults
// reproduce the historical behavior exactly.
type Weights struct {
	Base             float64 // neutral starting score
	VolumeDivisor    float64 // records per bonus point
	VolumeCap        float64 // max points from record volume
	FrequencyBonus   float64 // points for sustained activity
	MinRecordsPerDay float64 // frequency needed for the bonus

	// Trust-indicator weights; contribution is 100 * weight.
	VerifiedIdentity float64
	RepaymentHistory float64
	CollateralGrowth float64
	CompletedLoans   float64
	ActiveLoanLoad   float64 // negative: penalty for carrying too many open loans

	MinRepayments  int // repayments needed for the repayment indicator
	MaxActiveLoans int // open loans tolerated before the load penalty
}

// DefaultWeights is the tuned production configuration.
var DefaultWeights = Weights{
	Base:             50,
	VolumeDivisor:    2,
	VolumeCap:        20,
	FrequencyBonus:   10,
	MinRecordsPerDay: 0.5,

	VerifiedIdentity: 0.2,
	RepaymentHistory: 0.15,
	CollateralGrowth: 0.1,
	CompletedLoans:   0.1,
	ActiveLoanLoad:   -0.1,

	MinRepayments:  4,
	MaxActiveLoans: 2,
}

// Score is the result of one reputation computation.
type Score struct {
	Account      string                  `json:"account"`
	Score        int                     `json:"score"` // 0-100
	Indicators   []TrustIndicator        `json:"indicators"`
	Metrics      records.ActivityMetrics `json:"metrics"`
	CalculatedAt time.Time               `json:"calculatedAt"`
}

// Scorer computes reputation scores from secondary-ledger aggregates.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the default weights.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights}
}

// NewScorerWithWeights creates a scorer with custom weights.
func NewScorerWithWeights(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// ScoreFrom computes the reputation score and trust indicators for an
// aggregated record set. An empty record set yields the neutral base with no
// indicators; a degraded aggregate scores whatever records survived.
func (s *Scorer) ScoreFrom(agg records.Aggregate) *Score {
	w := s.weights

	score := w.Base
	if agg.Metrics.RecordCount > 0 && w.VolumeDivisor > 0 {
		score += math.Min(w.VolumeCap, float64(agg.Metrics.RecordCount)/w.VolumeDivisor)
	}
	if agg.Metrics.RecordsPerDay >= w.MinRecordsPerDay {
		score += w.FrequencyBonus
	}

	indicators := s.extractIndicators(agg.Records)
	for _, ind := range indicators {
		score += 100 * ind.Weight
	}

	score = math.Max(0, math.Min(100, score))

	return &Score{
		Account:      agg.Account,
		Score:        int(math.Round(score)),
		Indicators:   indicators,
		Metrics:      agg.Metrics,
		CalculatedAt: time.Now().UTC(),
	}
}

// extractIndicators scans the record set for the known trust patterns.
func (s *Scorer) extractIndicators(recs []records.Record) []TrustIndicator {
	w := s.weights

	var (
		verified       bool
		repayments     int
		collateralNet  float64
		completedLoans = map[string]struct{}{}
		activeLoans    = map[string]struct{}{}
		loanSeq        int
	)

	for _, r := range recs {
		switch p := r.Payload.(type) {
		case records.Verification:
			verified = true
		case records.Repayment:
			repayments++
		case records.CollateralChange:
			delta, _ := p.Delta.Float64()
			collateralNet += delta
		case records.LoanStatus:
			id := p.LoanID
			if id == "" {
				id = r.ID
			}
			if id == "" {
				// Records without any id still count, each as its own loan.
				loanSeq++
				id = fmt.Sprintf("loan-%d", loanSeq)
			}
			switch p.Status {
			case records.LoanCompleted:
				completedLoans[id] = struct{}{}
				delete(activeLoans, id)
			case records.LoanActive:
				if _, done := completedLoans[id]; !done {
					activeLoans[id] = struct{}{}
				}
			}
		}
	}

	var indicators []TrustIndicator
	if verified {
		indicators = append(indicators, TrustIndicator{
			Kind:   IndicatorVerifiedIdentity,
			Value:  1,
			Weight: w.VerifiedIdentity,
			Source: string(records.TagVerification),
		})
	}
	if repayments >= w.MinRepayments {
		indicators = append(indicators, TrustIndicator{
			Kind:   IndicatorRepaymentHistory,
			Value:  float64(repayments),
			Weight: w.RepaymentHistory,
			Source: string(records.TagRepayment),
		})
	}
	if collateralNet > 0 {
		indicators = append(indicators, TrustIndicator{
			Kind:   IndicatorCollateralGrowth,
			Value:  collateralNet,
			Weight: w.CollateralGrowth,
			Source: string(records.TagCollateralChange),
		})
	}
	if len(completedLoans) > len(activeLoans) && len(completedLoans) > 0 {
		indicators = append(indicators, TrustIndicator{
			Kind:   IndicatorCompletedLoans,
			Value:  float64(len(completedLoans)),
			Weight: w.CompletedLoans,
			Source: string(records.TagLoanStatus),
		})
	}
	if len(activeLoans) > w.MaxActiveLoans {
		indicators = append(indicators, TrustIndicator{
			Kind:   IndicatorActiveLoanLoad,
			Value:  float64(len(activeLoans)),
			Weight: w.ActiveLoanLoad,
			Source: string(records.TagLoanStatus),
		})
	}
	return indicators
}
