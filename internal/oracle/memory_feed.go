package oracle

import (
	"context"
	"sync"
)

// MemoryFeed is an in-memory Feed for development and tests. Accounts with
// no seeded data get (nil, nil), matching a remote feed's 404 behavior.
type MemoryFeed struct {
	name string

	mu           sync.Mutex
	creditScores map[string]float64
	marketRisk   map[string]MarketRisk
	crossChain   map[string]map[string]ChainActivity
	failWith     error
	calls        int
}

var _ Feed = (*MemoryFeed)(nil)

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed(name string) *MemoryFeed {
	return &MemoryFeed{
		name:         name,
		creditScores: make(map[string]float64),
		marketRisk:   make(map[string]MarketRisk),
		crossChain:   make(map[string]map[string]ChainActivity),
	}
}

// Name returns the feed name.
func (m *MemoryFeed) Name() string { return m.name }

// SetCreditScore seeds a credit score for an account.
func (m *MemoryFeed) SetCreditScore(account string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditScores[account] = score
}

// SetMarketRisk seeds market risk signals for an account.
func (m *MemoryFeed) SetMarketRisk(account string, mr MarketRisk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketRisk[account] = mr
}

// SetCrossChain seeds cross-chain activity for an account.
func (m *MemoryFeed) SetCrossChain(account string, chains map[string]ChainActivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crossChain[account] = chains
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *MemoryFeed) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls returns how many feed calls have been made.
func (m *MemoryFeed) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MemoryFeed) GetCreditScore(_ context.Context, account string) (*float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	score, ok := m.creditScores[account]
	if !ok {
		return nil, nil
	}
	return &score, nil
}

func (m *MemoryFeed) GetMarketRisk(_ context.Context, account string) (*MarketRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	mr, ok := m.marketRisk[account]
	if !ok {
		return nil, nil
	}
	out := mr
	return &out, nil
}

func (m *MemoryFeed) GetCrossChainActivity(_ context.Context, account string) (map[string]ChainActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	chains, ok := m.crossChain[account]
	if !ok {
		return nil, nil
	}
	out := make(map[string]ChainActivity, len(chains))
	for k, v := range chains {
		out[k] = v
	}
	return out, nil
}
