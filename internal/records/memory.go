package records

import (
	"context"
	"sync"
)

// MemoryClient is an in-memory Client for demo/development mode and tests.
// QueryByTag returns every record under the tag regardless of account;
// attribution is the aggregator's job, mirroring how the remote store
// over-returns candidates.
type MemoryClient struct {
	mu    sync.RWMutex
	byTag map[Tag][]Record

	FailTags   map[Tag]error // per-tag injected query failures
	FailAppend error
}

// Compile-time interface check
var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates an empty in-memory record store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		byTag:    make(map[Tag][]Record),
		FailTags: make(map[Tag]error),
	}
}

// Seed adds records to the store.
func (m *MemoryClient) Seed(recs ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.byTag[r.Tag] = append(m.byTag[r.Tag], r)
	}
}

func (m *MemoryClient) QueryByTag(ctx context.Context, tag Tag, account string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.FailTags[tag]; err != nil {
		return nil, err
	}
	return append([]Record(nil), m.byTag[tag]...), nil
}

func (m *MemoryClient) Append(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAppend != nil {
		return m.FailAppend
	}
	m.byTag[rec.Tag] = append(m.byTag[rec.Tag], rec)
	return nil
}

// FailAllTags injects the same failure for every known tag.
func (m *MemoryClient) FailAllTags(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range QueryTags {
		m.FailTags[tag] = err
	}
}
