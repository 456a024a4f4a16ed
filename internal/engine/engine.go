// Package engine is the assessment façade: it orchestrates the source
// fetchers, the evaluation chain, the score write-back, and the assessment
// history. Assess is total for any valid address; upstream failures degrade
// the result instead of failing the call.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerisk/internal/cache"
	"github.com/mbd888/ledgerisk/internal/idgen"
	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/metrics"
	"github.com/mbd888/ledgerisk/internal/model"
	"github.com/mbd888/ledgerisk/internal/retry"
	"github.com/mbd888/ledgerisk/internal/scoring"
	"github.com/mbd888/ledgerisk/internal/sources"
	"github.com/mbd888/ledgerisk/internal/traces"
	"github.com/mbd888/ledgerisk/internal/validation"
)

// ErrInvalidAddress rejects syntactically invalid account ids before any
// upstream work happens.
var ErrInvalidAddress = fmt.Errorf("engine: invalid account address")

// recordTimeout bounds the detached history write.
const recordTimeout = 5 * time.Second

// AssessOptions steer one assessment.
type AssessOptions struct {
	// UpdateOnLedger writes the new score back when it moved enough.
	UpdateOnLedger bool `json:"updateOnLedger"`
	// UseCachedData lets source fetchers serve cached upstream data.
	UseCachedData bool `json:"useCachedData"`
}

// RiskAssessment is the engine's result for one account.
type RiskAssessment struct {
	ID                  string                 `json:"id"`
	Account             string                 `json:"account"`
	Score               int                    `json:"score"`
	Confidence          float64                `json:"confidence"`
	Factors             []scoring.Factor       `json:"factors"`
	Recommendations     []model.Recommendation `json:"recommendations,omitempty"`
	Stage               string                 `json:"stage"`
	ModelVersion        string                 `json:"modelVersion"`
	UsedSecondaryLedger bool                   `json:"usedSecondaryLedger"`
	UsedOracle          bool                   `json:"usedOracle"`
	WriteBackTx         string                 `json:"writeBackTx,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
}

// Config holds the engine tunables.
type Config struct {
	// WriteBackMinDelta is the minimum score movement that justifies an
	// on-ledger write. Smaller changes are noise, not signal.
	WriteBackMinDelta int
	// ScoreTTL bounds how long a finished assessment is served from cache.
	ScoreTTL        time.Duration
	CacheMaxEntries int
	SweepInterval   time.Duration
	// Retry governs transient-failure retries on the score write-back.
	// The zero value falls back to retry.DefaultPolicy.
	Retry retry.Policy
}

// Engine runs assessments.
type Engine struct {
	ledger  ledger.Client
	sources *sources.Set
	chain   *model.Chain
	store   Store
	scores  *cache.Bounded[*RiskAssessment]

	writeBackMinDelta int
	scoreTTL          time.Duration
	retryPolicy       retry.Policy
	logger            *slog.Logger
}

// New creates an engine. Store may be a memory store; ledger and sources
// are required.
func New(l ledger.Client, src *sources.Set, chain *model.Chain, store Store, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.WriteBackMinDelta <= 0 {
		cfg.WriteBackMinDelta = 5
	}
	return &Engine{
		ledger:            l,
		sources:           src,
		chain:             chain,
		store:             store,
		scores:            cache.New[*RiskAssessment]("assessments", cfg.CacheMaxEntries, cfg.SweepInterval, logger),
		writeBackMinDelta: cfg.WriteBackMinDelta,
		scoreTTL:          cfg.ScoreTTL,
		retryPolicy:       cfg.Retry,
		logger:            logger,
	}
}

// Assess runs one full assessment. The only error it returns is address
// validation; every upstream failure degrades per source policy.
func (e *Engine) Assess(ctx context.Context, account string, opts AssessOptions) (*RiskAssessment, error) {
	if !validation.IsValidEthAddress(account) {
		return nil, ErrInvalidAddress
	}

	ctx, span := traces.StartSpan(ctx, "engine.Assess", traces.Account(account))
	defer span.End()
	start := time.Now()

	pos, err := e.sources.Primary.Fetch(ctx, account, opts.UseCachedData)
	if err != nil {
		// The primary is soft at the assessment level: scoring proceeds on
		// an empty position and the chain degrades accordingly.
		e.logger.Warn("primary position fetch failed",
			"account", account, "error", err)
		pos = ledger.Position{Account: account}
	}

	features := model.Features{Account: account, Position: pos}
	if e.sources.Secondary != nil {
		agg := e.sources.Secondary.Fetch(ctx, account, opts.UseCachedData)
		features.Records = &agg
	}
	if e.sources.Oracle != nil {
		if d, err := e.sources.Oracle.Fetch(ctx, account, opts.UseCachedData); err == nil && !d.Empty() {
			features.Oracle = &d
		}
	}

	res := e.chain.Evaluate(ctx, features)

	a := &RiskAssessment{
		ID:                  idgen.WithPrefix("asmt_"),
		Account:             account,
		Score:               res.Score,
		Confidence:          res.Confidence,
		Factors:             res.Factors,
		Recommendations:     res.Recommendations,
		Stage:               res.Stage,
		ModelVersion:        res.ModelVersion,
		UsedSecondaryLedger: res.UsedSecondaryLedger,
		UsedOracle:          res.UsedOracle,
		CreatedAt:           time.Now().UTC(),
	}

	if opts.UpdateOnLedger {
		a.WriteBackTx = e.writeBack(ctx, account, res.Score, pos.Score)
	}

	e.scores.Set(account, a, e.scoreTTL)
	metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
	metrics.AssessmentScores.Observe(float64(a.Score))
	span.SetAttributes(traces.Score(a.Score), traces.Stage(a.Stage))

	if e.store != nil {
		go e.record(a)
	}
	return a, nil
}

// writeBack submits the score on-ledger when it moved at least the
// configured delta from the last known on-ledger score. Duplicate or
// slightly stale writes are tolerated by the contract; the threshold keeps
// noise off the chain.
func (e *Engine) writeBack(ctx context.Context, account string, score, lastOnLedger int) string {
	delta := score - lastOnLedger
	if delta < 0 {
		delta = -delta
	}
	if delta < e.writeBackMinDelta {
		metrics.WriteBacksTotal.WithLabelValues("skipped").Inc()
		return ""
	}

	var tx string
	err := e.retryPolicy.Do(ctx, func() error {
		var submitErr error
		tx, submitErr = e.ledger.SubmitScore(ctx, account, score)
		return submitErr
	})
	if err != nil {
		metrics.WriteBacksTotal.WithLabelValues("failed").Inc()
		e.logger.Warn("score write-back failed",
			"account", account, "score", score, "error", err)
		return ""
	}
	metrics.WriteBacksTotal.WithLabelValues("submitted").Inc()
	e.logger.Info("score written on-ledger",
		"account", account, "score", score, "tx", tx)
	return tx
}

// record persists the assessment history entry off the request path.
func (e *Engine) record(a *RiskAssessment) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := e.store.Record(ctx, a); err != nil {
		e.logger.Warn("assessment history write failed",
			"account", a.Account, "id", a.ID, "error", err)
	}
}

// GetRecommendations returns just the advisory recommendations, serving a
// cached assessment when one is fresh.
func (e *Engine) GetRecommendations(ctx context.Context, account string) ([]model.Recommendation, error) {
	if a, ok := e.scores.Get(account); ok {
		return a.Recommendations, nil
	}
	a, err := e.Assess(ctx, account, AssessOptions{UseCachedData: true})
	if err != nil {
		return nil, err
	}
	return a.Recommendations, nil
}

// Cached returns the cached assessment for an account, if fresh.
func (e *Engine) Cached(account string) (*RiskAssessment, bool) {
	return e.scores.Get(account)
}

// History lists stored assessments, newest first.
func (e *Engine) History(ctx context.Context, account string, limit int) ([]*RiskAssessment, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.List(ctx, account, limit)
}

// ClearCache drops all cached data for one account across the engine and
// its sources.
func (e *Engine) ClearCache(account string) {
	e.scores.Delete(account)
	e.sources.Invalidate(account)
}

// ClearAllCaches empties every cache.
func (e *Engine) ClearAllCaches() {
	e.scores.Clear()
	e.sources.InvalidateAll()
}

// CacheStats reports per-cache statistics keyed by cache name.
func (e *Engine) CacheStats() map[string]cache.Stats {
	stats := e.sources.Stats()
	stats[e.scores.Name()] = e.scores.Stats()
	return stats
}

// Caches exposes every cache for lifecycle management (sweep start/stop).
func (e *Engine) Caches() []cache.Store {
	return append(e.sources.Stores(), e.scores)
}
