// Package metrics provides Prometheus instrumentation for the risk engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerisk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts completed assessments by the chain stage that
	// produced the result.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "assessments_total",
			Help:      "Total risk assessments by producing stage (model, combined, heuristic).",
		},
		[]string{"stage"},
	)

	// AssessmentDuration observes end-to-end assessment latency.
	AssessmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerisk",
		Name:      "assessment_duration_seconds",
		Help:      "End-to-end assessment duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// AssessmentScores observes the distribution of produced scores.
	AssessmentScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerisk",
		Name:      "assessment_scores",
		Help:      "Distribution of produced risk scores.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90},
	})

	// SourceFetchesTotal counts source fetches by source and outcome.
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "source_fetches_total",
			Help:      "Total source fetches by source and outcome (cached, fetched, degraded, error).",
		},
		[]string{"source", "outcome"},
	)

	// SourceFetchDuration observes upstream fetch latency by source.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledgerisk",
			Name:      "source_fetch_duration_seconds",
			Help:      "Upstream fetch duration in seconds by source.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// ModelInvocationsTotal counts external model invocations by mode and result.
	ModelInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "model_invocations_total",
			Help:      "Total external model invocations by mode and result.",
		},
		[]string{"mode", "result"},
	)

	// WriteBacksTotal counts on-ledger score write-backs by result.
	WriteBacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "writebacks_total",
			Help:      "Total on-ledger score write-backs by result (submitted, skipped, failed).",
		},
		[]string{"result"},
	)

	// AuditAppendsTotal counts detached audit-trail appends by result.
	AuditAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "audit_appends_total",
			Help:      "Total detached audit-trail appends to the secondary ledger by result.",
		},
		[]string{"result"},
	)

	// CacheOperationsTotal counts cache hits and misses by cache name.
	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "cache_operations_total",
			Help:      "Cache operations by cache name and kind (hit, miss, set, eviction, expiry).",
		},
		[]string{"cache", "kind"},
	)

	// CacheSize tracks current entry counts per cache.
	CacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ledgerisk",
			Name:      "cache_size",
			Help:      "Current number of entries per cache.",
		},
		[]string{"cache"},
	)

	// MonitorTrackedAccounts tracks how many accounts the monitor follows.
	MonitorTrackedAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk",
		Name:      "monitor_tracked_accounts",
		Help:      "Number of accounts currently tracked by the monitor.",
	})

	// MonitorChecksTotal counts per-account monitor checks by outcome.
	MonitorChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "monitor_checks_total",
			Help:      "Total monitor re-assessments by outcome (ok, changed, error).",
		},
		[]string{"outcome"},
	)

	// AlertsTotal counts raised alerts by severity.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "alerts_total",
			Help:      "Total alerts raised by severity.",
		},
		[]string{"severity"},
	)

	// WebhookDeliveriesTotal counts alert webhook deliveries by result.
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledgerisk",
			Name:      "webhook_deliveries_total",
			Help:      "Total alert webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledgerisk",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerisk", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		AssessmentDuration,
		AssessmentScores,
		SourceFetchesTotal,
		SourceFetchDuration,
		ModelInvocationsTotal,
		WriteBacksTotal,
		AuditAppendsTotal,
		CacheOperationsTotal,
		CacheSize,
		MonitorTrackedAccounts,
		MonitorChecksTotal,
		AlertsTotal,
		WebhookDeliveriesTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
