package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/ledgerisk/internal/metrics"
)

// Alert severities.
const (
	SeverityChange = "score_change"
	SeverityHigh   = "high"
)

// ErrAlertNotFound is returned when acknowledging an unknown alert.
var ErrAlertNotFound = errors.New("monitor: alert not found")

// Alert is one recorded score-drift event.
type Alert struct {
	ID             string     `json:"id"`
	Account        string     `json:"account"`
	Severity       string     `json:"severity"`
	OldScore       int        `json:"oldScore"`
	NewScore       int        `json:"newScore"`
	Delta          int        `json:"delta"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// AlertStore persists monitor alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *Alert) error
	List(ctx context.Context, account string, limit int) ([]*Alert, error)
	Acknowledge(ctx context.Context, id string) error
}

// memoryAlertCap bounds stored alerts in memory mode.
const memoryAlertCap = 500

// MemoryAlertStore is an in-memory AlertStore for demo mode and tests.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts []*Alert
}

var _ AlertStore = (*MemoryAlertStore)(nil)

// NewMemoryAlertStore creates an empty in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

// Create prepends the alert, trimming the oldest past the cap.
func (m *MemoryAlertStore) Create(_ context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alerts = append([]*Alert{alert}, m.alerts...)
	if len(m.alerts) > memoryAlertCap {
		m.alerts = m.alerts[:memoryAlertCap]
	}
	return nil
}

// List returns alerts newest first, optionally filtered by account.
func (m *MemoryAlertStore) List(_ context.Context, account string, limit int) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	account = strings.ToLower(account)

	var out []*Alert
	for _, a := range m.alerts {
		if account != "" && strings.ToLower(a.Account) != account {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Acknowledge marks an alert as seen.
func (m *MemoryAlertStore) Acknowledge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.ID == id {
			now := time.Now().UTC()
			a.Acknowledged = true
			a.AcknowledgedAt = &now
			return nil
		}
	}
	return ErrAlertNotFound
}

// fireAlertWebhook delivers one alert, best-effort.
func fireAlertWebhook(webhookURL string, alert *Alert, logger *slog.Logger) {
	body, err := json.Marshal(alert)
	if err != nil {
		return
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		logger.Warn("alert webhook delivery failed", "account", alert.Account, "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		logger.Warn("alert webhook rejected",
			"account", alert.Account, "status", resp.StatusCode)
		return
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
}
