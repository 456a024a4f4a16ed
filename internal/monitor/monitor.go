// Package monitor polls tracked accounts for score drift. Each tick
// re-assesses every tracked account through the engine; a move past the
// change threshold is reported on-ledger and recorded, and a move past
// twice the threshold additionally raises a high-severity alert.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/ledgerisk/internal/engine"
	"github.com/mbd888/ledgerisk/internal/idgen"
	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/metrics"
	"github.com/mbd888/ledgerisk/internal/records"
	"github.com/mbd888/ledgerisk/internal/validation"
)

// Monitor state errors.
var (
	ErrAlreadyRunning = errors.New("monitor: already running")
	ErrNotRunning     = errors.New("monitor: not running")
	ErrInvalidAddress = errors.New("monitor: invalid account address")
)

// auditStage tags monitor-originated audit records.
const auditStage = "monitor"

// Config holds the monitor tunables.
type Config struct {
	// Interval between check rounds.
	Interval time.Duration
	// ChangeThreshold is the score movement that triggers a report.
	ChangeThreshold int
	// AlertMultiplier scales the threshold for high-severity alerts.
	AlertMultiplier float64
	// Workers bounds concurrent per-account checks within a round.
	Workers int
	// WebhookURL receives high-severity alerts, when set.
	WebhookURL string
}

// Notifier receives monitor events for live subscribers. Implementations
// must not block.
type Notifier interface {
	NotifyScoreChange(account string, oldScore, newScore int)
	NotifyAlert(alert *Alert)
}

// TrackedAccount is the externally visible per-account state.
type TrackedAccount struct {
	Account     string    `json:"account"`
	LastScore   int       `json:"lastScore"`
	LastChecked time.Time `json:"lastChecked"`
	TrackedAt   time.Time `json:"trackedAt"`
}

type accountState struct {
	lastScore   int
	lastChecked time.Time
	trackedAt   time.Time
}

// Monitor polls tracked accounts.
type Monitor struct {
	cfg      Config
	engine   *engine.Engine
	ledger   ledger.Client
	audit    *records.AuditWriter // nil disables audit records
	store    AlertStore
	notifier Notifier // nil disables live events
	logger   *slog.Logger

	mu       sync.Mutex
	accounts map[string]*accountState
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithAuditWriter enables audit records for score changes.
func WithAuditWriter(w *records.AuditWriter) Option {
	return func(m *Monitor) { m.audit = w }
}

// WithNotifier forwards monitor events to live subscribers.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithLogger sets the monitor logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New creates a monitor. Engine, ledger client, and alert store are
// required.
func New(eng *engine.Engine, l ledger.Client, store AlertStore, cfg Config, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = 5
	}
	if cfg.AlertMultiplier <= 1 {
		cfg.AlertMultiplier = 2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	m := &Monitor{
		cfg:      cfg,
		engine:   eng,
		ledger:   l,
		store:    store,
		logger:   logging.Discard(),
		accounts: make(map[string]*accountState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Track adds an account, seeding the baseline from the ledger's last known
// score. A dead ledger seeds zero; the first check round corrects it.
func (m *Monitor) Track(ctx context.Context, account string) error {
	if !validation.IsValidEthAddress(account) {
		return ErrInvalidAddress
	}

	seed := 0
	if pos, err := m.ledger.GetPosition(ctx, account); err == nil {
		seed = pos.Score
	} else {
		m.logger.Warn("baseline fetch failed, seeding zero",
			"account", account, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account]; !ok {
		m.accounts[account] = &accountState{
			lastScore: seed,
			trackedAt: time.Now().UTC(),
		}
		metrics.MonitorTrackedAccounts.Set(float64(len(m.accounts)))
	}
	return nil
}

// Untrack removes an account.
func (m *Monitor) Untrack(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, account)
	metrics.MonitorTrackedAccounts.Set(float64(len(m.accounts)))
}

// Tracked lists the tracked accounts and their state.
func (m *Monitor) Tracked() []TrackedAccount {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TrackedAccount, 0, len(m.accounts))
	for account, st := range m.accounts {
		out = append(out, TrackedAccount{
			Account:     account,
			LastScore:   st.lastScore,
			LastChecked: st.lastChecked,
			TrackedAt:   st.trackedAt,
		})
	}
	return out
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Interval returns the configured check interval.
func (m *Monitor) Interval() time.Duration { return m.cfg.Interval }

// Start launches the poll loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx, stop)
	m.logger.Info("monitor started",
		"interval", m.cfg.Interval, "threshold", m.cfg.ChangeThreshold, "workers", m.cfg.Workers)
	return nil
}

// Stop halts the loop, lets in-flight checks finish, and clears all
// tracked state.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.accounts = make(map[string]*accountState)
	metrics.MonitorTrackedAccounts.Set(0)
	m.mu.Unlock()

	m.logger.Info("monitor stopped")
	return nil
}

func (m *Monitor) loop(ctx context.Context, stop chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.runRound(ctx, stop)
		}
	}
}

// runRound checks every tracked account through a bounded worker pool and
// waits for the round to finish before returning to the loop.
func (m *Monitor) runRound(ctx context.Context, stop chan struct{}) {
	m.mu.Lock()
	batch := make(map[string]int, len(m.accounts))
	for account, st := range m.accounts {
		batch[account] = st.lastScore
	}
	m.mu.Unlock()

	sem := make(chan struct{}, m.cfg.Workers)
	var wg sync.WaitGroup
	for account, lastScore := range batch {
		select {
		case <-stop:
			// Let in-flight checks drain but start no new ones.
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(account string, lastScore int) {
			defer wg.Done()
			defer func() { <-sem }()
			m.check(ctx, account, lastScore)
		}(account, lastScore)
	}
	wg.Wait()
}

// check re-assesses one account and reacts to score drift.
func (m *Monitor) check(ctx context.Context, account string, lastScore int) {
	a, err := m.engine.Assess(ctx, account, engine.AssessOptions{})
	if err != nil {
		metrics.MonitorChecksTotal.WithLabelValues("error").Inc()
		m.logger.Warn("monitor check failed", "account", account, "error", err)
		return
	}

	delta := a.Score - lastScore
	if delta < 0 {
		delta = -delta
	}

	if delta < m.cfg.ChangeThreshold {
		metrics.MonitorChecksTotal.WithLabelValues("ok").Inc()
		m.touch(account, a.Score)
		return
	}

	metrics.MonitorChecksTotal.WithLabelValues("changed").Inc()
	m.logger.Info("score changed",
		"account", account, "from", lastScore, "to", a.Score, "delta", delta)

	if m.audit != nil {
		m.audit.Submit(account, a.Score, auditStage)
	}
	if _, err := m.ledger.SubmitScore(ctx, account, a.Score); err != nil {
		m.logger.Warn("on-ledger score report failed",
			"account", account, "score", a.Score, "error", err)
	}
	if m.notifier != nil {
		m.notifier.NotifyScoreChange(account, lastScore, a.Score)
	}

	severity := SeverityChange
	if float64(delta) >= float64(m.cfg.ChangeThreshold)*m.cfg.AlertMultiplier {
		severity = SeverityHigh
	}
	m.raise(ctx, account, severity, lastScore, a.Score)

	m.touch(account, a.Score)
}

// raise records the alert and, for high severity, escalates on-ledger and
// over the webhook.
func (m *Monitor) raise(ctx context.Context, account, severity string, oldScore, newScore int) {
	delta := newScore - oldScore
	if delta < 0 {
		delta = -delta
	}
	alert := &Alert{
		ID:        idgen.WithPrefix("alert_"),
		Account:   account,
		Severity:  severity,
		OldScore:  oldScore,
		NewScore:  newScore,
		Delta:     delta,
		CreatedAt: time.Now().UTC(),
	}

	metrics.AlertsTotal.WithLabelValues(severity).Inc()
	if err := m.store.Create(ctx, alert); err != nil {
		m.logger.Warn("alert store write failed", "account", account, "error", err)
	}

	if severity != SeverityHigh {
		return
	}

	if _, err := m.ledger.SubmitAlert(ctx, account, newScore); err != nil {
		m.logger.Warn("on-ledger alert failed",
			"account", account, "score", newScore, "error", err)
	}
	if m.cfg.WebhookURL != "" {
		go fireAlertWebhook(m.cfg.WebhookURL, alert, m.logger)
	}
	if m.notifier != nil {
		m.notifier.NotifyAlert(alert)
	}
}

// touch updates an account's state if it is still tracked.
func (m *Monitor) touch(account string, score int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.accounts[account]; ok {
		st.lastScore = score
		st.lastChecked = time.Now().UTC()
	}
}

// CheckNow runs one check round immediately. Tests and the discovery
// bootstrap use it; the poll loop never does.
func (m *Monitor) CheckNow(ctx context.Context) {
	m.runRound(ctx, make(chan struct{}))
}
