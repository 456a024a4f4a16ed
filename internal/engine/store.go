package engine

import "context"

// DefaultHistoryLimit caps history listings when the caller gives none.
const DefaultHistoryLimit = 50

// Store persists assessment history. Writes happen off the request path;
// a store failure costs history, never an assessment.
type Store interface {
	Record(ctx context.Context, a *RiskAssessment) error
	List(ctx context.Context, account string, limit int) ([]*RiskAssessment, error)
}
