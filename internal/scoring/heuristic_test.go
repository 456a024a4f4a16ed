package scoring

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mbd888/ledgerisk/internal/ledger"
)

func position(deposits, borrows, collateral int64, verified bool) ledger.Position {
	return ledger.Position{
		Account:          "0xaaaa000000000000000000000000000000000001",
		Deposits:         decimal.NewFromInt(deposits),
		Borrows:          decimal.NewFromInt(borrows),
		Collateral:       decimal.NewFromInt(collateral),
		IdentityVerified: verified,
	}
}

func TestPositionScore_NoDebt(t *testing.T) {
	// Depositor with no borrows: the infinite collateral ratio takes the
	// no-debt adjustment and zero utilization earns nothing either way.
	score, factors := PositionScore(position(1000, 0, 0, false), DefaultHeuristicWeights)

	assert.Equal(t, 30, score)
	assert.Len(t, factors, 1)
	assert.Equal(t, "no_outstanding_debt", factors[0].Name)
}

func TestPositionScore_ThinCollateralHighUtilization(t *testing.T) {
	// borrows 900 of 1000 deposited, collateral ratio 1.11: both risk bands.
	score, factors := PositionScore(position(1000, 900, 1000, false), DefaultHeuristicWeights)

	assert.Equal(t, 75, score)
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"thin_collateral", "high_utilization"}, names)
}

func TestPositionScore_Bands(t *testing.T) {
	tests := []struct {
		name string
		pos  ledger.Position
		want int
	}{
		{"well collateralized", position(1000, 100, 500, false), 30},  // ratio 5 (-15), util 0.1 (-5)
		{"solid collateral", position(1000, 500, 900, false), 45},     // ratio 1.8 (-5), util 0.5
		{"mid band untouched", position(1000, 500, 700, false), 50},   // ratio 1.4, util 0.5
		{"verified borrower", position(1000, 500, 700, true), 40},     // -10 verification
		{"verified no debt floor", position(1000, 0, 0, true), 20},    // -20 -10
		{"thin collateral only", position(1000, 700, 500, false), 65}, // ratio 0.71 (+15), util 0.7
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := PositionScore(tt.pos, DefaultHeuristicWeights)
			assert.Equal(t, tt.want, score)
		})
	}
}

func TestPositionScore_ZeroPositionIsNeutralMinusDebt(t *testing.T) {
	// A completely empty position still scores: no borrows means no debt.
	score, _ := PositionScore(ledger.Position{}, DefaultHeuristicWeights)
	assert.Equal(t, 30, score)
}

func TestPositionScore_ClampFloor(t *testing.T) {
	w := DefaultHeuristicWeights
	w.NoDebt = -80
	score, _ := PositionScore(position(1000, 0, 0, true), w)
	assert.Equal(t, 0, score)
}
