package engine

import (
	"context"
	"strings"
	"sync"
)

// memoryStoreCap bounds per-account history in memory mode.
const memoryStoreCap = 200

// MemoryStore is an in-memory Store for demo/development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byAcct  map[string][]*RiskAssessment
	FailAll error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAcct: make(map[string][]*RiskAssessment)}
}

// Record prepends the assessment, trimming old entries past the cap.
func (m *MemoryStore) Record(_ context.Context, a *RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll != nil {
		return m.FailAll
	}

	key := strings.ToLower(a.Account)
	history := append([]*RiskAssessment{a}, m.byAcct[key]...)
	if len(history) > memoryStoreCap {
		history = history[:memoryStoreCap]
	}
	m.byAcct[key] = history
	return nil
}

// List returns up to limit assessments, newest first.
func (m *MemoryStore) List(_ context.Context, account string, limit int) ([]*RiskAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailAll != nil {
		return nil, m.FailAll
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	history := m.byAcct[strings.ToLower(account)]
	if len(history) > limit {
		history = history[:limit]
	}
	return append([]*RiskAssessment(nil), history...), nil
}
