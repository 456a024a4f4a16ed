package sources

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerisk/internal/cache"
	"github.com/mbd888/ledgerisk/internal/metrics"
	"github.com/mbd888/ledgerisk/internal/records"
)

// Secondary fetches and aggregates record history from the append-only
// store. The source is best-effort: per-tag failures shrink the aggregate
// and even a total failure yields an empty record set, never an error.
type Secondary struct {
	aggregator *records.Aggregator
	cache      *cache.Bounded[records.Aggregate]
	ttl        time.Duration
	logger     *slog.Logger
}

// NewSecondary creates the secondary-ledger fetcher.
func NewSecondary(client records.Client, cc CacheConfig, logger *slog.Logger) *Secondary {
	return &Secondary{
		aggregator: records.NewAggregator(client, logger),
		cache:      cache.New[records.Aggregate]("secondary", cc.MaxEntries, cc.SweepInterval, logger),
		ttl:        cc.TTL,
		logger:     logger,
	}
}

// Fetch returns the aggregated record history for an account.
func (s *Secondary) Fetch(ctx context.Context, account string, useCache bool) records.Aggregate {
	if useCache {
		if agg, ok := s.cache.Get(account); ok {
			metrics.SourceFetchesTotal.WithLabelValues("secondary", "cached").Inc()
			return agg
		}
	}

	start := time.Now()
	agg := s.aggregator.Collect(ctx, account)
	metrics.SourceFetchDuration.WithLabelValues("secondary").Observe(time.Since(start).Seconds())

	switch {
	case agg.AllFailed():
		metrics.SourceFetchesTotal.WithLabelValues("secondary", "degraded").Inc()
		// Do not cache a total miss; the next fetch should retry.
		return agg
	case agg.Degraded():
		metrics.SourceFetchesTotal.WithLabelValues("secondary", "degraded").Inc()
	default:
		metrics.SourceFetchesTotal.WithLabelValues("secondary", "fetched").Inc()
	}

	s.cache.Set(account, agg, s.ttl)
	return agg
}
