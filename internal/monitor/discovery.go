package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/records"
)

// Discovery finds accounts worth tracking. The primary path reads recent
// borrow events from the ledger and keeps accounts with a live borrow
// balance; when the ledger is unreachable it falls back to scanning the
// record store for active loan records.
type Discovery struct {
	monitor *Monitor
	ledger  ledger.Client
	records records.Client // nil disables the fallback path
	every   time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewDiscovery creates a discovery loop that scans at four times the
// monitor's check interval.
func NewDiscovery(m *Monitor, l ledger.Client, rc records.Client, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Discovery{
		monitor: m,
		ledger:  l,
		records: rc,
		every:   4 * m.Interval(),
		logger:  logger,
	}
}

// Start launches the discovery loop with an immediate first scan.
func (d *Discovery) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stop = make(chan struct{})
	stop := d.stop
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.discover(ctx)

		ticker := time.NewTicker(d.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				d.discover(ctx)
			}
		}
	}()
	d.logger.Info("account discovery started", "every", d.every)
}

// Stop halts the loop.
func (d *Discovery) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Discovery) discover(ctx context.Context) {
	candidates, err := d.ledger.BorrowerCandidates(ctx)
	if err != nil {
		d.logger.Warn("borrower discovery failed, trying record store",
			"error", err)
		d.discoverFromRecords(ctx)
		return
	}

	tracked := 0
	for _, account := range candidates {
		pos, err := d.ledger.GetPosition(ctx, account)
		if err != nil {
			d.logger.Warn("candidate position fetch failed",
				"account", account, "error", err)
			continue
		}
		if pos.Borrows.IsZero() {
			continue
		}
		if err := d.monitor.Track(ctx, account); err == nil {
			tracked++
		}
	}
	d.logger.Info("discovery round complete",
		"candidates", len(candidates), "tracked", tracked)
}

// discoverFromRecords scans loan-status records for active loans. The
// unscoped query leans on the record store returning every record for the
// tag; attribution comes from the record itself.
func (d *Discovery) discoverFromRecords(ctx context.Context) {
	if d.records == nil {
		return
	}

	recs, err := d.records.QueryByTag(ctx, records.TagLoanStatus, "")
	if err != nil {
		d.logger.Warn("record-store discovery failed", "error", err)
		return
	}

	tracked := 0
	for _, r := range recs {
		status, ok := r.Payload.(records.LoanStatus)
		if !ok || status.Status != records.LoanActive || r.Account == "" {
			continue
		}
		if err := d.monitor.Track(ctx, r.Account); err == nil {
			tracked++
		}
	}
	d.logger.Info("record-store discovery complete",
		"records", len(recs), "tracked", tracked)
}
