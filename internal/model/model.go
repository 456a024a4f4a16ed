// Package model runs the external predictive model and the staged fallback
// chain behind it. The chain is total: whatever fails upstream, evaluation
// always lands on the position heuristic and returns a result.
package model

import (
	"context"

	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/oracle"
	"github.com/mbd888/ledgerisk/internal/records"
	"github.com/mbd888/ledgerisk/internal/reputation"
	"github.com/mbd888/ledgerisk/internal/scoring"
)

// Model modes.
const (
	ModeOff    = "off"
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Recommendation is one advisory action surfaced with an assessment.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"` // low, medium, high
}

// Features is the full input handed to the model: the primary position plus
// whatever secondary data the fetch produced. Nil fields mean the source
// was skipped or unavailable.
type Features struct {
	Account    string             `json:"account"`
	Position   ledger.Position    `json:"position"`
	Records    *records.Aggregate `json:"records,omitempty"`
	Oracle     *oracle.Data       `json:"oracle,omitempty"`
	Reputation *reputation.Score  `json:"reputation,omitempty"`
}

// Prediction is a model's raw output before post-processing.
type Prediction struct {
	Score           int              `json:"score"`
	Confidence      float64          `json:"confidence"`
	Factors         []scoring.Factor `json:"factors"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Version         string           `json:"version,omitempty"`
}

// Client invokes an external predictive model.
type Client interface {
	Predict(ctx context.Context, f Features) (*Prediction, error)
	Mode() string
}
