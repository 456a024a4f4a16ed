package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/ledgerisk/internal/idgen"
)

// ScoreSubmission records one write accepted by the memory client.
type ScoreSubmission struct {
	Account string    `json:"account"`
	Score   int       `json:"score"`
	TxRef   string    `json:"txRef"`
	At      time.Time `json:"at"`
}

// MemoryClient is an in-memory Client for demo/development mode and tests.
// The Fail* fields inject errors; set them before handing the client to the
// code under test.
type MemoryClient struct {
	mu        sync.RWMutex
	positions map[string]Position
	verified  map[string]bool
	scores    []ScoreSubmission
	alerts    []ScoreSubmission
	borrowers []string

	FailPosition   error
	FailVerify     error
	FailSubmit     error
	FailCandidates error
}

// Compile-time interface check
var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates an empty in-memory ledger client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		positions: make(map[string]Position),
		verified:  make(map[string]bool),
	}
}

// SetPosition seeds or replaces an account's position.
func (m *MemoryClient) SetPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(p.Account)
	p.Account = key
	m.positions[key] = p
}

// SetVerified seeds an account's identity verification flag.
func (m *MemoryClient) SetVerified(account string, verified bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[strings.ToLower(account)] = verified
}

// SetBorrowerCandidates seeds the discovery candidate list.
func (m *MemoryClient) SetBorrowerCandidates(accounts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowers = append([]string(nil), accounts...)
}

// GetPosition returns the seeded position. Unknown accounts read as an empty
// position, matching how a contract mapping reads for an untouched key.
func (m *MemoryClient) GetPosition(ctx context.Context, account string) (Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailPosition != nil {
		return Position{}, m.FailPosition
	}

	key := strings.ToLower(account)
	p, ok := m.positions[key]
	if !ok {
		p = Position{Account: key}
	}
	p.FetchedAt = time.Now().UTC()
	return p, nil
}

func (m *MemoryClient) IsVerified(ctx context.Context, account string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailVerify != nil {
		return false, m.FailVerify
	}
	return m.verified[strings.ToLower(account)], nil
}

// SubmitScore records the write and folds the score into the stored position
// so subsequent reads observe it.
func (m *MemoryClient) SubmitScore(ctx context.Context, account string, score int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSubmit != nil {
		return "", m.FailSubmit
	}

	key := strings.ToLower(account)
	txRef := idgen.WithPrefix("memtx_")
	m.scores = append(m.scores, ScoreSubmission{Account: key, Score: score, TxRef: txRef, At: time.Now().UTC()})

	p := m.positions[key]
	p.Account = key
	p.Score = score
	p.UpdatedAt = time.Now().UTC()
	m.positions[key] = p

	return txRef, nil
}

func (m *MemoryClient) SubmitAlert(ctx context.Context, account string, score int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSubmit != nil {
		return "", m.FailSubmit
	}

	txRef := idgen.WithPrefix("memtx_")
	m.alerts = append(m.alerts, ScoreSubmission{Account: strings.ToLower(account), Score: score, TxRef: txRef, At: time.Now().UTC()})
	return txRef, nil
}

func (m *MemoryClient) BorrowerCandidates(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailCandidates != nil {
		return nil, m.FailCandidates
	}
	return append([]string(nil), m.borrowers...), nil
}

// SubmittedScores returns every score write accepted so far.
func (m *MemoryClient) SubmittedScores() []ScoreSubmission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ScoreSubmission(nil), m.scores...)
}

// SubmittedAlerts returns every alert accepted so far.
func (m *MemoryClient) SubmittedAlerts() []ScoreSubmission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ScoreSubmission(nil), m.alerts...)
}

func (m *MemoryClient) Close() error { return nil }
