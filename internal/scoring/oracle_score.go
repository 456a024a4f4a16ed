package scoring

import (
	"math"

	"github.com/mbd888/ledgerisk/internal/oracle"
)

// OracleAdjustments configures the oracle sub-score terms.
type OracleAdjustments struct {
	Base float64 // used when the feed supplied no credit score

	CreditScaleMin  float64 // external scale lower bound
	CreditScaleSpan float64 // external scale width

	VolatilityDivisor float64
	LiquidityDivisor  float64

	ChainDiversityPoints float64 // subtracted per distinct chain
	ChainDiversityCap    float64
	FailureRatePenalty   float64 // multiplied by the average failure rate
}

// DefaultOracleAdjustments maps the common 300-850 external credit scale.
var DefaultOracleAdjustments = OracleAdjustments{
	Base:            50,
	CreditScaleMin:  300,
	CreditScaleSpan: 550,

	VolatilityDivisor: 10,
	LiquidityDivisor:  5,

	ChainDiversityPoints: 5,
	ChainDiversityCap:    15,
	FailureRatePenalty:   50,
}

// OracleScore converts oracle data into a 0-100 risk sub-score. Higher
// external credit means lower risk, so the rescaled credit score is
// inverted before the market and cross-chain terms are applied.
func OracleScore(d oracle.Data, cfg OracleAdjustments) int {
	score := cfg.Base
	if d.CreditScore != nil {
		normalized := (*d.CreditScore - cfg.CreditScaleMin) / cfg.CreditScaleSpan * 100
		score = 100 - normalized
	}

	if d.MarketRisk != nil {
		score += d.MarketRisk.Volatility / cfg.VolatilityDivisor
		score += d.MarketRisk.LiquidityRisk / cfg.LiquidityDivisor
	}

	if n := len(d.CrossChain); n > 0 {
		score -= math.Min(cfg.ChainDiversityCap, cfg.ChainDiversityPoints*float64(n))

		var totalFailure float64
		for _, chain := range d.CrossChain {
			totalFailure += chain.FailureRate
		}
		score += totalFailure / float64(n) * cfg.FailureRatePenalty
	}

	return int(math.Round(clamp(score)))
}
