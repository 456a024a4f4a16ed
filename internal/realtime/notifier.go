package realtime

import (
	"github.com/mbd888/ledgerisk/internal/monitor"
)

// Compile-time check that the hub can receive monitor events directly.
var _ monitor.Notifier = (*Hub)(nil)

// NotifyScoreChange forwards a monitor score change to subscribers.
func (h *Hub) NotifyScoreChange(account string, oldScore, newScore int) {
	h.BroadcastScoreUpdate(account, oldScore, newScore)
}

// NotifyAlert forwards a monitor alert to subscribers.
func (h *Hub) NotifyAlert(alert *monitor.Alert) {
	h.BroadcastAlert(map[string]interface{}{
		"id":       alert.ID,
		"account":  alert.Account,
		"severity": alert.Severity,
		"oldScore": float64(alert.OldScore),
		"newScore": float64(alert.NewScore),
		"delta":    float64(alert.Delta),
	})
}
