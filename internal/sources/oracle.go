package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerisk/internal/cache"
	"github.com/mbd888/ledgerisk/internal/metrics"
	"github.com/mbd888/ledgerisk/internal/oracle"
)

// Oracle fetches external feed data. Alongside the TTL cache it keeps a
// last-known-good snapshot per account with no expiry; when a refresh
// fails, the snapshot is served marked stale rather than dropping the
// signal entirely.
type Oracle struct {
	service  *oracle.Service
	cache    *cache.Bounded[oracle.Data]
	lastGood *cache.Bounded[oracle.Data]
	ttl      time.Duration
	logger   *slog.Logger
}

// NewOracle creates the oracle fetcher.
func NewOracle(service *oracle.Service, cc CacheConfig, logger *slog.Logger) *Oracle {
	return &Oracle{
		service:  service,
		cache:    cache.New[oracle.Data]("oracle", cc.MaxEntries, cc.SweepInterval, logger),
		lastGood: cache.New[oracle.Data]("oracle_last_good", cc.MaxEntries, cc.SweepInterval, logger),
		ttl:      cc.TTL,
		logger:   logger,
	}
}

// Fetch returns oracle data for an account. A failed refresh falls back to
// the last good snapshot, marked stale; with no snapshot the error stands.
func (o *Oracle) Fetch(ctx context.Context, account string, useCache bool) (oracle.Data, error) {
	if useCache {
		if d, ok := o.cache.Get(account); ok {
			metrics.SourceFetchesTotal.WithLabelValues("oracle", "cached").Inc()
			return d, nil
		}
	}

	start := time.Now()
	d, err := o.service.Fetch(ctx, account)
	metrics.SourceFetchDuration.WithLabelValues("oracle").Observe(time.Since(start).Seconds())
	if err != nil {
		if prev, ok := o.lastGood.Get(account); ok {
			metrics.SourceFetchesTotal.WithLabelValues("oracle", "degraded").Inc()
			o.logger.Warn("oracle refresh failed, serving stale snapshot",
				"account", account, "age", time.Since(prev.FetchedAt).Round(time.Second), "error", err)
			prev.Stale = true
			return prev, nil
		}
		metrics.SourceFetchesTotal.WithLabelValues("oracle", "error").Inc()
		return oracle.Data{}, err
	}

	o.cache.Set(account, d, o.ttl)
	if !d.Empty() {
		o.lastGood.Set(account, d, 0)
	}
	metrics.SourceFetchesTotal.WithLabelValues("oracle", "fetched").Inc()
	return d, nil
}
