// Package sources wraps the three upstream collaborators behind cached
// fetchers with per-source TTLs. Failure semantics differ per source: the
// primary ledger is a hard dependency of an assessment, the secondary
// record store is best-effort, and the oracle degrades to a stale snapshot
// before going absent.
package sources

import (
	"github.com/mbd888/ledgerisk/internal/cache"
)

// Set bundles the fetchers an engine operates on. Oracle may be nil when
// no feed is configured.
type Set struct {
	Primary   *Primary
	Secondary *Secondary
	Oracle    *Oracle
}

// Invalidate drops all cached data for one account.
func (s *Set) Invalidate(account string) {
	for _, c := range s.stores() {
		c.Delete(account)
	}
}

// InvalidateAll clears every source cache.
func (s *Set) InvalidateAll() {
	for _, c := range s.stores() {
		c.Clear()
	}
}

// Stats reports per-cache statistics keyed by cache name.
func (s *Set) Stats() map[string]cache.Stats {
	out := make(map[string]cache.Stats)
	for _, c := range s.stores() {
		out[c.Name()] = c.Stats()
	}
	return out
}

// Stores exposes the underlying caches for lifecycle management.
func (s *Set) Stores() []cache.Store {
	return s.stores()
}

func (s *Set) stores() []cache.Store {
	var out []cache.Store
	if s.Primary != nil {
		out = append(out, s.Primary.cache)
	}
	if s.Secondary != nil {
		out = append(out, s.Secondary.cache)
	}
	if s.Oracle != nil {
		out = append(out, s.Oracle.cache, s.Oracle.lastGood)
	}
	return out
}
