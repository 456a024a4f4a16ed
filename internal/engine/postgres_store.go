package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Factors and
// recommendations are stored as JSONB so the schema does not chase the
// scoring internals.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id                    VARCHAR(64) PRIMARY KEY,
			account               VARCHAR(42) NOT NULL,
			score                 INTEGER NOT NULL,
			confidence            NUMERIC(4,3) NOT NULL,
			factors               JSONB NOT NULL DEFAULT '[]',
			recommendations       JSONB NOT NULL DEFAULT '[]',
			stage                 VARCHAR(20) NOT NULL,
			model_version         VARCHAR(64) NOT NULL DEFAULT '',
			used_secondary_ledger BOOLEAN NOT NULL DEFAULT FALSE,
			used_oracle           BOOLEAN NOT NULL DEFAULT FALSE,
			write_back_tx         VARCHAR(80) NOT NULL DEFAULT '',
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_risk_assessments_account ON risk_assessments(account, created_at DESC);
	`)
	return err
}

// Record inserts one assessment.
func (p *PostgresStore) Record(ctx context.Context, a *RiskAssessment) error {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	recommendations, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (
			id, account, score, confidence, factors, recommendations,
			stage, model_version, used_secondary_ledger, used_oracle,
			write_back_tx, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		a.ID, strings.ToLower(a.Account), a.Score, a.Confidence, factors, recommendations,
		a.Stage, a.ModelVersion, a.UsedSecondaryLedger, a.UsedOracle,
		a.WriteBackTx, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// List returns up to limit assessments for an account, newest first.
func (p *PostgresStore) List(ctx context.Context, account string, limit int) ([]*RiskAssessment, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account, score, confidence, factors, recommendations,
			stage, model_version, used_secondary_ledger, used_oracle,
			write_back_tx, created_at
		FROM risk_assessments
		WHERE account = $1
		ORDER BY created_at DESC LIMIT $2
	`, strings.ToLower(account), limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssessment(rows *sql.Rows) (*RiskAssessment, error) {
	var (
		a               RiskAssessment
		factors         []byte
		recommendations []byte
	)
	err := rows.Scan(
		&a.ID, &a.Account, &a.Score, &a.Confidence, &factors, &recommendations,
		&a.Stage, &a.ModelVersion, &a.UsedSecondaryLedger, &a.UsedOracle,
		&a.WriteBackTx, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &a.Factors); err != nil {
			return nil, fmt.Errorf("decode factors: %w", err)
		}
	}
	if len(recommendations) > 0 {
		if err := json.Unmarshal(recommendations, &a.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	return &a, nil
}
