// Package ledger talks to the primary ledger: the lending pool contract
// holding per-account deposit, borrow, and collateral balances plus the last
// risk score recorded on ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidAddress = errors.New("ledger: invalid account address")
	ErrReadOnly       = errors.New("ledger: no signing key configured, client is read-only")
	ErrRPCConnection  = errors.New("ledger: RPC connection failed")
)

// CallError wraps a failed contract interaction with context.
type CallError struct {
	Op     string // Operation that failed
	TxHash string // Transaction hash if one was sent
	Err    error  // Underlying error
}

func (e *CallError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("ledger: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("ledger: %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Position is an immutable snapshot of one account's lending-pool state.
// IdentityVerified comes from a separate soft lookup and stays false when
// that lookup fails.
type Position struct {
	Account          string          `json:"account"`
	Deposits         decimal.Decimal `json:"deposits"`
	Borrows          decimal.Decimal `json:"borrows"`
	Collateral       decimal.Decimal `json:"collateral"`
	Score            int             `json:"score"` // last score recorded on ledger
	IdentityVerified bool            `json:"identityVerified"`
	UpdatedAt        time.Time       `json:"updatedAt"` // last on-ledger position change
	FetchedAt        time.Time       `json:"fetchedAt"`
}

// CollateralRatio returns collateral/borrows. An account with no debt
// returns +Inf; callers special-case the sentinel before doing arithmetic.
func (p Position) CollateralRatio() float64 {
	if p.Borrows.IsZero() {
		return math.Inf(1)
	}
	r, _ := p.Collateral.Div(p.Borrows).Float64()
	return r
}

// UtilizationRatio returns borrows/deposits, or 0 when nothing is deposited.
func (p Position) UtilizationRatio() float64 {
	if p.Deposits.IsZero() {
		return 0
	}
	r, _ := p.Borrows.Div(p.Deposits).Float64()
	return r
}

// Client is the primary-ledger collaborator. GetPosition and IsVerified are
// reads. SubmitScore and SubmitAlert write and may legitimately fail without
// failing the assessment that triggered them; both return a transaction
// reference. BorrowerCandidates lists addresses seen in recent borrow events
// for monitor discovery.
type Client interface {
	GetPosition(ctx context.Context, account string) (Position, error)
	IsVerified(ctx context.Context, account string) (bool, error)
	SubmitScore(ctx context.Context, account string, score int) (string, error)
	SubmitAlert(ctx context.Context, account string, score int) (string, error)
	BorrowerCandidates(ctx context.Context) ([]string, error)
	Close() error
}
