// Package scoring holds the pure score arithmetic: the primary-ledger
// heuristic, the oracle sub-score, and the weighted combiner. Everything
// here is deterministic and free of I/O so it can be exercised exhaustively
// in tests and reused by both the model chain and the monitor.
package scoring

import "math"

// Factor is one named contribution to a score, with a relative importance
// in [0,1]. Factors explain a score; they do not reproduce it.
type Factor struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// clamp bounds a raw score to the canonical 0-100 range.
func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
