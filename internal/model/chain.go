package model

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/metrics"
	"github.com/mbd888/ledgerisk/internal/records"
	"github.com/mbd888/ledgerisk/internal/reputation"
	"github.com/mbd888/ledgerisk/internal/scoring"
	"github.com/mbd888/ledgerisk/internal/traces"
)

// Evaluation stages, in fallback order.
const (
	StageModel     = "model"
	StageCombined  = "combined"
	StageHeuristic = "heuristic"
)

// Version tags stamped per stage when the model supplies none.
const (
	combinerVersion  = "combiner/v1"
	heuristicVersion = "heuristic/v1"
)

// heuristicConfidence is the fixed confidence of the terminal fallback.
const heuristicConfidence = 0.6

// Result is one complete evaluation.
type Result struct {
	Score               int               `json:"score"`
	Confidence          float64           `json:"confidence"`
	Factors             []scoring.Factor  `json:"factors"`
	Recommendations     []Recommendation  `json:"recommendations,omitempty"`
	Stage               string            `json:"stage"`
	ModelVersion        string            `json:"modelVersion"`
	UsedSecondaryLedger bool              `json:"usedSecondaryLedger"`
	UsedOracle          bool              `json:"usedOracle"`
	Reputation          *reputation.Score `json:"reputation,omitempty"`
	EvaluatedAt         time.Time         `json:"evaluatedAt"`
}

// Chain evaluates an account through the ordered fallback: external model,
// then the weighted combiner, then the bare position heuristic. Each stage
// is attempted at most once; the heuristic cannot fail, so Evaluate always
// returns a result.
type Chain struct {
	client    Client // nil when no model is configured
	scorer    *reputation.Scorer
	heuristic scoring.HeuristicWeights
	oracleAdj scoring.OracleAdjustments
	combiner  scoring.CombinerWeights
	audit     *records.AuditWriter // nil disables the audit trail
	logger    *slog.Logger
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithModelClient sets the external model tried first.
func WithModelClient(c Client) ChainOption {
	return func(ch *Chain) { ch.client = c }
}

// WithAuditWriter enables the fire-and-forget audit trail.
func WithAuditWriter(w *records.AuditWriter) ChainOption {
	return func(ch *Chain) { ch.audit = w }
}

// WithCombinerWeights overrides the default combiner weights.
func WithCombinerWeights(w scoring.CombinerWeights) ChainOption {
	return func(ch *Chain) { ch.combiner = w }
}

// WithHeuristicWeights overrides the default heuristic bands.
func WithHeuristicWeights(w scoring.HeuristicWeights) ChainOption {
	return func(ch *Chain) { ch.heuristic = w }
}

// WithReputationScorer overrides the default reputation scorer.
func WithReputationScorer(s *reputation.Scorer) ChainOption {
	return func(ch *Chain) { ch.scorer = s }
}

// WithChainLogger sets the chain logger.
func WithChainLogger(l *slog.Logger) ChainOption {
	return func(ch *Chain) { ch.logger = l }
}

// NewChain creates an evaluation chain with default weights.
func NewChain(opts ...ChainOption) *Chain {
	ch := &Chain{
		scorer:    reputation.NewScorer(),
		heuristic: scoring.DefaultHeuristicWeights,
		oracleAdj: scoring.DefaultOracleAdjustments,
		combiner:  scoring.DefaultCombinerWeights,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Evaluate runs the chain for one account. It never fails: a broken model
// or missing secondary data degrades the stage, not the call.
func (c *Chain) Evaluate(ctx context.Context, f Features) *Result {
	ctx, span := traces.StartSpan(ctx, "model.Evaluate", traces.Account(f.Account))
	defer span.End()

	res := c.evaluate(ctx, f)
	c.postProcess(f, res)

	res.EvaluatedAt = time.Now().UTC()
	span.SetAttributes(traces.Score(res.Score), traces.Stage(res.Stage))
	metrics.AssessmentsTotal.WithLabelValues(res.Stage).Inc()

	if c.audit != nil {
		c.audit.Submit(f.Account, res.Score, res.Stage)
	}
	return res
}

func (c *Chain) evaluate(ctx context.Context, f Features) *Result {
	rep := f.Reputation
	if rep == nil && secondaryUsable(f.Records) {
		rep = c.scorer.ScoreFrom(*f.Records)
	}
	usedSecondary := rep != nil
	usedOracle := f.Oracle != nil && !f.Oracle.Empty()

	// Stage 1: external model.
	if c.client != nil {
		f.Reputation = rep
		pred, err := c.client.Predict(ctx, f)
		if err == nil {
			metrics.ModelInvocationsTotal.WithLabelValues(c.client.Mode(), "ok").Inc()
			version := pred.Version
			if version == "" {
				version = c.client.Mode()
			}
			return &Result{
				Score:               pred.Score,
				Confidence:          pred.Confidence,
				Factors:             pred.Factors,
				Recommendations:     pred.Recommendations,
				Stage:               StageModel,
				ModelVersion:        version,
				UsedSecondaryLedger: usedSecondary,
				UsedOracle:          usedOracle,
				Reputation:          rep,
			}
		}
		metrics.ModelInvocationsTotal.WithLabelValues(c.client.Mode(), "error").Inc()
		c.logger.Warn("model stage failed, falling through",
			"account", f.Account, "mode", c.client.Mode(), "error", err)
	}

	primary, primaryFactors := scoring.PositionScore(f.Position, c.heuristic)

	// Stage 2: weighted combiner, when any secondary source came through.
	if usedSecondary || usedOracle {
		var repScore, oracleScore *int
		if rep != nil {
			repScore = &rep.Score
		}
		if usedOracle {
			s := scoring.OracleScore(*f.Oracle, c.oracleAdj)
			oracleScore = &s
		}
		combined := scoring.Combine(primary, repScore, oracleScore, c.combiner)
		return &Result{
			Score:               combined.Score,
			Confidence:          combined.Confidence,
			Factors:             combined.Factors,
			Stage:               StageCombined,
			ModelVersion:        combinerVersion,
			UsedSecondaryLedger: usedSecondary,
			UsedOracle:          usedOracle,
			Reputation:          rep,
		}
	}

	// Stage 3: the terminal heuristic. No dependencies, cannot fail.
	return &Result{
		Score:        primary,
		Confidence:   heuristicConfidence,
		Factors:      primaryFactors,
		Stage:        StageHeuristic,
		ModelVersion: heuristicVersion,
	}
}

// postProcess appends advisory recommendations and the secondary-data
// confidence bump.
func (c *Chain) postProcess(f Features, res *Result) {
	if !res.UsedSecondaryLedger || f.Records == nil {
		return
	}

	m := f.Records.Metrics
	if m.RecordsPerDay < 0.5 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Title:       "Increase transaction activity",
			Description: "Sparse record history limits reputation scoring. Regular activity on the record store builds a stronger profile.",
			Impact:      "low",
		})
	}
	if !hasVerification(f.Records.Records) {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Title:       "Verify identity",
			Description: "No identity verification record found. Completing verification lowers the assessed risk.",
			Impact:      "medium",
		})
	}
	if m.DistinctTags < 3 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Title:       "Diversify ledger activity",
			Description: "Activity is concentrated in few record categories. Broader usage gives the scorer more signal.",
			Impact:      "low",
		})
	}

	res.Confidence += 0.15
	if res.Confidence > 1.0 {
		res.Confidence = 1.0
	}
}

// secondaryUsable reports whether the aggregate carries any signal worth
// scoring. A total fetch failure is absence, not an empty history.
func secondaryUsable(agg *records.Aggregate) bool {
	return agg != nil && !agg.AllFailed()
}

func hasVerification(recs []records.Record) bool {
	for _, r := range recs {
		if r.Tag == records.TagVerification {
			return true
		}
	}
	return false
}
