package records

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/ledgerisk/internal/idgen"
	"github.com/mbd888/ledgerisk/internal/metrics"
)

// DefaultAuditTimeout bounds each detached audit append.
const DefaultAuditTimeout = 5 * time.Second

// AuditWriter appends assessment audit records to the secondary ledger.
// Appends run detached from the caller: they never block the assessment
// return path and their failures are logged and counted, not propagated.
type AuditWriter struct {
	client  Client
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAuditWriter creates an audit writer over the given record store.
func NewAuditWriter(client Client, logger *slog.Logger) *AuditWriter {
	return &AuditWriter{
		client:  client,
		logger:  logger,
		timeout: DefaultAuditTimeout,
	}
}

// Submit records {account, score, stage} as a risk-update entry and returns
// immediately. The append runs on its own context so a finished request
// cannot cancel it.
func (w *AuditWriter) Submit(account string, score int, stage string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		rec := Record{
			ID:        idgen.WithPrefix("audit_"),
			Tag:       TagRiskUpdate,
			Account:   strings.ToLower(account),
			Owner:     strings.ToLower(account),
			Timestamp: time.Now().UTC(),
			Payload:   RiskUpdate{Score: score, Source: stage},
		}
		if err := w.client.Append(ctx, rec); err != nil {
			metrics.AuditAppendsTotal.WithLabelValues("error").Inc()
			w.logger.Warn("audit append failed",
				"account", account, "score", score, "stage", stage, "error", err)
			return
		}
		metrics.AuditAppendsTotal.WithLabelValues("ok").Inc()
	}()
}

// Wait blocks until all in-flight appends finish. Shutdown and tests use it;
// the assessment path never does.
func (w *AuditWriter) Wait() {
	w.wg.Wait()
}
