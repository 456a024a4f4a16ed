// Package records talks to the secondary ledger: an append-only,
// tag-addressable record store holding auxiliary account history such as
// repayments, verifications, and loan status changes. Records arrive
// unordered and loosely typed; this package decodes them into typed variants
// at the fetch boundary so scoring logic never touches raw payloads.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tag is a record category on the secondary ledger.
type Tag string

const (
	TagRiskUpdate         Tag = "risk-update"
	TagVerification       Tag = "verification"
	TagLoanStatus         Tag = "loan-status"
	TagRepayment          Tag = "repayment"
	TagCollateralChange   Tag = "collateral-change"
	TagCrossLayerDeposit  Tag = "cross-layer-deposit"
	TagCrossLayerWithdraw Tag = "cross-layer-withdrawal"
)

// QueryTags is every tag the aggregator fans out over, in query order.
var QueryTags = []Tag{
	TagRiskUpdate,
	TagVerification,
	TagLoanStatus,
	TagRepayment,
	TagCollateralChange,
	TagCrossLayerDeposit,
	TagCrossLayerWithdraw,
}

// Loan lifecycle states carried by LoanStatus records.
const (
	LoanActive    = "active"
	LoanCompleted = "completed"
	LoanDefaulted = "defaulted"
)

// Cross-layer transfer directions.
const (
	DirectionDeposit    = "deposit"
	DirectionWithdrawal = "withdrawal"
)

var (
	ErrUnknownTag = errors.New("records: unknown record tag")
)

// Payload is the tag-specific body of a record. Exactly one concrete type
// matches each known tag.
type Payload interface{ isPayload() }

// RiskUpdate records a score that was computed for the account, including
// the engine's own audit-trail appends.
type RiskUpdate struct {
	Score  int    `json:"score"`
	Source string `json:"source,omitempty"` // producing stage or system name
}

// Verification links a secondary-ledger identity to a primary-ledger owner.
type Verification struct {
	Method string `json:"method,omitempty"`
}

// LoanStatus tracks one loan's lifecycle state.
type LoanStatus struct {
	LoanID string `json:"loanId,omitempty"`
	Status string `json:"status"`
}

// Repayment records a loan repayment.
type Repayment struct {
	LoanID string          `json:"loanId,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// CollateralChange records a signed collateral delta; increases are positive.
type CollateralChange struct {
	Asset string          `json:"asset,omitempty"`
	Delta decimal.Decimal `json:"delta"`
}

// CrossLayerTransfer records value moving between ledger layers.
type CrossLayerTransfer struct {
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Layer     string          `json:"layer,omitempty"`
}

func (RiskUpdate) isPayload()         {}
func (Verification) isPayload()       {}
func (LoanStatus) isPayload()         {}
func (Repayment) isPayload()          {}
func (CollateralChange) isPayload()   {}
func (CrossLayerTransfer) isPayload() {}

// Record is the common envelope around every secondary-ledger entry. Account
// is the store's own identifier for the subject; Owner, when present, is the
// primary-ledger address the record claims to belong to. ID is opaque and is
// the dedupe key during aggregation.
type Record struct {
	ID        string
	Tag       Tag
	Account   string
	Owner     string
	Timestamp time.Time
	Payload   Payload
}

type recordEnvelope struct {
	ID        string          `json:"id"`
	Tag       Tag             `json:"tag"`
	Account   string          `json:"accountId"`
	Owner     string          `json:"owner,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// UnmarshalJSON decodes the envelope and then the tag-specific payload.
// Unknown tags are an error so callers can skip and log the record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("records: decode envelope: %w", err)
	}

	payload, err := decodePayload(env.Tag, env.Payload)
	if err != nil {
		return err
	}

	r.ID = env.ID
	r.Tag = env.Tag
	r.Account = env.Account
	r.Owner = env.Owner
	r.Timestamp = env.Timestamp
	r.Payload = payload
	return nil
}

// MarshalJSON writes the envelope form consumed by the secondary ledger.
func (r Record) MarshalJSON() ([]byte, error) {
	env := recordEnvelope{
		ID:        r.ID,
		Tag:       r.Tag,
		Account:   r.Account,
		Owner:     r.Owner,
		Timestamp: r.Timestamp,
	}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("records: encode payload: %w", err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// decodePayload maps a raw payload to its typed variant. An absent payload
// decodes to the variant's zero value; append-only stores carry plenty of
// sparse records and a missing body is not worth dropping the envelope over.
func decodePayload(tag Tag, raw json.RawMessage) (Payload, error) {
	switch tag {
	case TagRiskUpdate:
		var p RiskUpdate
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagVerification:
		var p Verification
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagLoanStatus:
		var p LoanStatus
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagRepayment:
		var p Repayment
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagCollateralChange:
		var p CollateralChange
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TagCrossLayerDeposit:
		var p CrossLayerTransfer
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		if p.Direction == "" {
			p.Direction = DirectionDeposit
		}
		return p, nil
	case TagCrossLayerWithdraw:
		var p CrossLayerTransfer
		if err := unmarshalPayload(tag, raw, &p); err != nil {
			return nil, err
		}
		if p.Direction == "" {
			p.Direction = DirectionWithdrawal
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

func unmarshalPayload(tag Tag, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("records: decode %s payload: %w", tag, err)
	}
	return nil
}

// Client is the secondary-ledger collaborator. QueryByTag may fail per tag;
// failures are independent and callers treat them as best-effort. Append adds
// one record to the store.
type Client interface {
	QueryByTag(ctx context.Context, tag Tag, account string) ([]Record, error)
	Append(ctx context.Context, rec Record) error
}
