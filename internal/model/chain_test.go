package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/oracle"
	"github.com/mbd888/ledgerisk/internal/records"
)

const account = "0xaaaa000000000000000000000000000000000001"

type fakeModel struct {
	pred  *Prediction
	err   error
	calls int
}

func (f *fakeModel) Predict(context.Context, Features) (*Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pred, nil
}

func (f *fakeModel) Mode() string { return ModeRemote }

func depositOnlyPosition() ledger.Position {
	return ledger.Position{
		Account:  account,
		Deposits: decimal.NewFromInt(1000),
	}
}

func emptyAggregate() *records.Aggregate {
	return &records.Aggregate{Account: account, FetchedAt: time.Now()}
}

func failedAggregate() *records.Aggregate {
	return &records.Aggregate{
		Account:    account,
		FailedTags: records.QueryTags,
		FetchedAt:  time.Now(),
	}
}

func TestChain_HeuristicIsTerminal(t *testing.T) {
	chain := NewChain()

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
	})

	assert.Equal(t, StageHeuristic, res.Stage)
	assert.Equal(t, 30, res.Score, "deposit-only position scores 50-20")
	assert.Equal(t, 0.6, res.Confidence, "heuristic confidence is fixed")
	assert.False(t, res.UsedSecondaryLedger)
	assert.False(t, res.EvaluatedAt.IsZero())
}

func TestChain_TotalSecondaryFailureFallsToHeuristic(t *testing.T) {
	chain := NewChain()

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
		Records:  failedAggregate(),
	})

	assert.Equal(t, StageHeuristic, res.Stage)
	assert.Equal(t, 0.6, res.Confidence)
	assert.False(t, res.UsedSecondaryLedger)
}

func TestChain_CombinedWithReputationOnly(t *testing.T) {
	chain := NewChain()

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
		Records:  emptyAggregate(),
	})

	assert.Equal(t, StageCombined, res.Stage)
	require.NotNil(t, res.Reputation)
	assert.Equal(t, 50, res.Reputation.Score, "empty history scores neutral")
	// (0.5*30 + 0.3*50) / 0.8 renormalized = 37.5, rounds to 38.
	assert.Equal(t, 38, res.Score)
	// Combiner 0.7 plus the secondary-data bump.
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	assert.True(t, res.UsedSecondaryLedger)
}

func TestChain_CombinedWithBothSecondarySources(t *testing.T) {
	chain := NewChain()
	credit := 575.0

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
		Records:  emptyAggregate(),
		Oracle:   &oracle.Data{Account: account, CreditScore: &credit},
	})

	assert.Equal(t, StageCombined, res.Stage)
	assert.True(t, res.UsedOracle)
	// 0.5*30 + 0.3*50 + 0.2*50 = 40, no renormalization.
	assert.Equal(t, 40, res.Score)
	// 0.85 combiner confidence + 0.15 bump caps at 1.0.
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestChain_ModelWins(t *testing.T) {
	fm := &fakeModel{pred: &Prediction{Score: 42, Confidence: 0.9, Version: "risknet-2"}}
	chain := NewChain(WithModelClient(fm))

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
	})

	assert.Equal(t, StageModel, res.Stage)
	assert.Equal(t, 42, res.Score)
	assert.Equal(t, "risknet-2", res.ModelVersion)
	assert.Equal(t, 1, fm.calls)
}

func TestChain_ModelFailureFallsThrough(t *testing.T) {
	fm := &fakeModel{err: errors.New("model exploded")}
	chain := NewChain(WithModelClient(fm))

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
		Records:  emptyAggregate(),
	})

	assert.Equal(t, 1, fm.calls, "each stage is attempted at most once")
	assert.Equal(t, StageCombined, res.Stage)
}

func TestChain_AdvisoryRecommendations(t *testing.T) {
	chain := NewChain()

	// One lonely record: low frequency, no verification, one distinct tag.
	agg := emptyAggregate()
	agg.Records = []records.Record{{
		ID: "r1", Tag: records.TagRiskUpdate, Account: account,
		Timestamp: time.Now().Add(-90 * 24 * time.Hour),
		Payload:   records.RiskUpdate{Score: 40},
	}}
	agg.Metrics = records.ComputeActivity(agg.Records)

	res := chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
		Records:  agg,
	})

	require.Len(t, res.Recommendations, 3)
	titles := make([]string, len(res.Recommendations))
	for i, r := range res.Recommendations {
		titles[i] = r.Title
	}
	assert.Contains(t, titles, "Verify identity")
}

func TestChain_AuditTrailRecordsStage(t *testing.T) {
	store := records.NewMemoryClient()
	audit := records.NewAuditWriter(store, logging.Discard())
	chain := NewChain(WithAuditWriter(audit))

	chain.Evaluate(context.Background(), Features{
		Account:  account,
		Position: depositOnlyPosition(),
	})
	audit.Wait()

	recs, err := store.QueryByTag(context.Background(), records.TagRiskUpdate, account)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	payload, ok := recs[0].Payload.(records.RiskUpdate)
	require.True(t, ok)
	assert.Equal(t, StageHeuristic, payload.Source)
	assert.Equal(t, 30, payload.Score)
}
