// Package oracle talks to external data feeds supplying credit and market
// risk signals that neither ledger holds. Every feed component is optional:
// a feed that is down, misconfigured, or missing a signal degrades that
// signal to absent rather than failing the fetch.
package oracle

import (
	"context"
	"time"
)

// MarketRisk is the oracle's view of current market conditions around an
// account's collateral.
type MarketRisk struct {
	Volatility    float64 `json:"volatility"`    // volatility index, points
	Sentiment     float64 `json:"sentiment"`     // -1..1, informational only
	LiquidityRisk float64 `json:"liquidityRisk"` // points
}

// ChainActivity summarizes an account's footprint on one external chain.
type ChainActivity struct {
	TxCount      int       `json:"txCount"`
	LastActivity time.Time `json:"lastActivity"`
	FailureRate  float64   `json:"failureRate"` // 0..1
}

// Data is the merged result of one oracle fetch. Nil fields mean the signal
// was unavailable; Stale means a fresh fetch failed and this is the last
// known good snapshot.
type Data struct {
	Account     string                   `json:"account"`
	CreditScore *float64                 `json:"creditScore,omitempty"` // external 300-850 scale
	MarketRisk  *MarketRisk              `json:"marketRisk,omitempty"`
	CrossChain  map[string]ChainActivity `json:"crossChain,omitempty"`
	Feed        string                   `json:"feed,omitempty"` // feed that answered
	Stale       bool                     `json:"stale,omitempty"`
	FetchedAt   time.Time                `json:"fetchedAt"`
}

// Empty reports whether the fetch produced no usable signal at all.
func (d Data) Empty() bool {
	return d.CreditScore == nil && d.MarketRisk == nil && len(d.CrossChain) == 0
}

// Feed is one external oracle source. Each method may fail or return nil
// independently; callers treat every signal as optional.
type Feed interface {
	Name() string
	GetCreditScore(ctx context.Context, account string) (*float64, error)
	GetMarketRisk(ctx context.Context, account string) (*MarketRisk, error)
	GetCrossChainActivity(ctx context.Context, account string) (map[string]ChainActivity, error)
}
