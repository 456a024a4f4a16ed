package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledgerisk/internal/model"
	"github.com/mbd888/ledgerisk/internal/scoring"
	"github.com/mbd888/ledgerisk/internal/testutil"
)

func sampleAssessment(id, account string, score int, at time.Time) *RiskAssessment {
	return &RiskAssessment{
		ID:         id,
		Account:    account,
		Score:      score,
		Confidence: 0.85,
		Factors: []scoring.Factor{
			{Name: "collateralization", Importance: 0.4},
			{Name: "utilization", Importance: 0.3},
		},
		Recommendations: []model.Recommendation{
			{Title: "Diversify activity", Description: "History is concentrated in one record type", Impact: "low"},
		},
		Stage:               model.StageCombined,
		ModelVersion:        "combiner/v1",
		UsedSecondaryLedger: true,
		CreatedAt:           at.UTC(),
	}
}

func TestPostgresStore_RecordAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.Record(ctx, sampleAssessment("asmt_1", account, 38, base)))
	require.NoError(t, store.Record(ctx, sampleAssessment("asmt_2", account, 52, base.Add(time.Minute))))

	history, err := store.List(ctx, account, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first.
	assert.Equal(t, "asmt_2", history[0].ID)
	assert.Equal(t, 52, history[0].Score)
	assert.Equal(t, "asmt_1", history[1].ID)

	got := history[1]
	assert.InDelta(t, 0.85, got.Confidence, 1e-3)
	require.Len(t, got.Factors, 2)
	assert.Equal(t, "collateralization", got.Factors[0].Name)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "low", got.Recommendations[0].Impact)
	assert.Equal(t, model.StageCombined, got.Stage)
	assert.True(t, got.UsedSecondaryLedger)
}

func TestPostgresStore_ListHonorsLimitAndAccount(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	other := "0xbbbb000000000000000000000000000000000002"
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		require.NoError(t, store.Record(ctx, sampleAssessment("asmt_"+id, account, 30+i, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, store.Record(ctx, sampleAssessment("asmt_other", other, 70, base)))

	history, err := store.List(ctx, account, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "asmt_c", history[0].ID)

	// Mixed-case lookup matches the lowercased stored account.
	history, err = store.List(ctx, "0xBBBB000000000000000000000000000000000002", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "asmt_other", history[0].ID)
}
