package scoring

import "math"

// CombinerWeights configures the weighted merge of the three score sources.
// The oracle weight is the remainder after primary and reputation, clamped
// to zero so misconfiguration cannot produce a negative weight.
type CombinerWeights struct {
	Primary    float64
	Reputation float64
}

// DefaultCombinerWeights is the production configuration.
var DefaultCombinerWeights = CombinerWeights{
	Primary:    0.5,
	Reputation: 0.3,
}

// Oracle returns the residual oracle weight.
func (w CombinerWeights) Oracle() float64 {
	return math.Max(0, 1-w.Primary-w.Reputation)
}

// Combined is the result of a weighted merge.
type Combined struct {
	Score      int
	Confidence float64
	Factors    []Factor
}

// Combine merges the primary heuristic score with the optional reputation
// and oracle sub-scores. Missing sources drop out and the remaining weights
// are renormalized so absent data does not systematically depress the score.
// With only the primary present, its score passes through unweighted.
func Combine(primary int, reputation, oracleScore *int, w CombinerWeights) Combined {
	if reputation == nil && oracleScore == nil {
		return Combined{
			Score:      primary,
			Confidence: 0.7,
			Factors:    []Factor{{Name: "primary_heuristic", Importance: 1}},
		}
	}

	weightSum := w.Primary
	weighted := float64(primary) * w.Primary
	factors := []Factor{{Name: "primary_heuristic", Importance: w.Primary}}

	if reputation != nil {
		weightSum += w.Reputation
		weighted += float64(*reputation) * w.Reputation
		factors = append(factors, Factor{Name: "secondary_reputation", Importance: w.Reputation})
	}
	if oracleScore != nil {
		ow := w.Oracle()
		weightSum += ow
		weighted += float64(*oracleScore) * ow
		factors = append(factors, Factor{Name: "oracle_signals", Importance: ow})
	}

	// Renormalize over the sources actually present.
	if weightSum > 0 && weightSum < 1 {
		weighted /= weightSum
		for i := range factors {
			factors[i].Importance /= weightSum
		}
	}

	confidence := 0.7
	if reputation != nil && oracleScore != nil {
		confidence = 0.85
	}

	return Combined{
		Score:      int(math.Round(clamp(weighted))),
		Confidence: confidence,
		Factors:    factors,
	}
}
