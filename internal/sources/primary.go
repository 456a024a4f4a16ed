package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerisk/internal/cache"
	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/metrics"
)

// CacheConfig sizes one source cache.
type CacheConfig struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

// Primary fetches account positions from the on-chain ledger. The identity
// verification lookup rides along as a soft dependency: its failure degrades
// to unverified instead of failing the position fetch.
type Primary struct {
	client ledger.Client
	cache  *cache.Bounded[ledger.Position]
	ttl    time.Duration
	logger *slog.Logger
}

// NewPrimary creates the primary-ledger fetcher.
func NewPrimary(client ledger.Client, cc CacheConfig, logger *slog.Logger) *Primary {
	return &Primary{
		client: client,
		cache:  cache.New[ledger.Position]("primary", cc.MaxEntries, cc.SweepInterval, logger),
		ttl:    cc.TTL,
		logger: logger,
	}
}

// Fetch returns the account's position, from cache when allowed and fresh.
func (p *Primary) Fetch(ctx context.Context, account string, useCache bool) (ledger.Position, error) {
	if useCache {
		if pos, ok := p.cache.Get(account); ok {
			metrics.SourceFetchesTotal.WithLabelValues("primary", "cached").Inc()
			return pos, nil
		}
	}

	start := time.Now()
	pos, err := p.client.GetPosition(ctx, account)
	metrics.SourceFetchDuration.WithLabelValues("primary").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("primary", "error").Inc()
		return ledger.Position{}, err
	}

	verified, err := p.client.IsVerified(ctx, account)
	if err != nil {
		// Soft dependency: an unreachable verifier means unverified.
		p.logger.Warn("identity verification lookup failed",
			"account", account, "error", err)
		verified = false
	}
	pos.IdentityVerified = verified

	p.cache.Set(account, pos, p.ttl)
	metrics.SourceFetchesTotal.WithLabelValues("primary", "fetched").Inc()
	return pos, nil
}
