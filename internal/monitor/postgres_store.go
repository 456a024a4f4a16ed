package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Compile-time check that PostgresAlertStore implements AlertStore.
var _ AlertStore = (*PostgresAlertStore)(nil)

// PostgresAlertStore implements AlertStore backed by PostgreSQL.
type PostgresAlertStore struct {
	db *sql.DB
}

// NewPostgresAlertStore creates a new PostgreSQL-backed alert store.
func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

// Migrate creates the monitor_alerts table if it doesn't exist.
func (p *PostgresAlertStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS monitor_alerts (
			id              VARCHAR(64) PRIMARY KEY,
			account         VARCHAR(42) NOT NULL,
			severity        VARCHAR(20) NOT NULL,
			old_score       INTEGER NOT NULL,
			new_score       INTEGER NOT NULL,
			delta           INTEGER NOT NULL,
			acknowledged    BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_monitor_alerts_account ON monitor_alerts(account, created_at DESC);
	`)
	return err
}

// Create inserts one alert.
func (p *PostgresAlertStore) Create(ctx context.Context, alert *Alert) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO monitor_alerts (
			id, account, severity, old_score, new_score, delta,
			acknowledged, acknowledged_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		alert.ID, strings.ToLower(alert.Account), alert.Severity,
		alert.OldScore, alert.NewScore, alert.Delta,
		alert.Acknowledged, nullTimeOrValue(alert.AcknowledgedAt), alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// List returns alerts newest first, optionally filtered by account.
func (p *PostgresAlertStore) List(ctx context.Context, account string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account, severity, old_score, new_score, delta,
			acknowledged, acknowledged_at, created_at
		FROM monitor_alerts`
	args := []any{}
	if account != "" {
		query += ` WHERE account = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, strings.ToLower(account), limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Alert
	for rows.Next() {
		var (
			a     Alert
			ackAt sql.NullTime
		)
		err := rows.Scan(
			&a.ID, &a.Account, &a.Severity, &a.OldScore, &a.NewScore, &a.Delta,
			&a.Acknowledged, &ackAt, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if ackAt.Valid {
			t := ackAt.Time
			a.AcknowledgedAt = &t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Acknowledge marks an alert as seen.
func (p *PostgresAlertStore) Acknowledge(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE monitor_alerts
		SET acknowledged = TRUE, acknowledged_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// nullTimeOrValue maps a nil time pointer to SQL NULL.
func nullTimeOrValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
