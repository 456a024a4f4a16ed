package records

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Aggregate is the merged, attributed, deduplicated view of one account's
// secondary-ledger history.
type Aggregate struct {
	Account    string          `json:"account"`
	Records    []Record        `json:"records"`
	Metrics    ActivityMetrics `json:"metrics"`
	FailedTags []Tag           `json:"failedTags,omitempty"`
	FetchedAt  time.Time       `json:"fetchedAt"`
}

// Degraded reports whether any tag query failed.
func (a Aggregate) Degraded() bool { return len(a.FailedTags) > 0 }

// AllFailed reports whether every tag query failed; the engine then treats
// the secondary source as absent rather than merely thin.
func (a Aggregate) AllFailed() bool { return len(a.FailedTags) == len(QueryTags) }

// Aggregator fans one account lookup out over every known tag and merges the
// results. Per-tag failures are logged and skipped; an account whose every
// query fails still yields an empty aggregate, never an error.
type Aggregator struct {
	client Client
	logger *slog.Logger
}

// NewAggregator creates an aggregator over the given secondary-ledger client.
func NewAggregator(client Client, logger *slog.Logger) *Aggregator {
	return &Aggregator{client: client, logger: logger}
}

// Collect queries every tag for the account, keeps the records attributable
// to it, and deduplicates them by record id.
//
// A record is attributed to the account when any of the following hold:
// the envelope account id matches directly, the owner field matches, or the
// envelope account id was linked to the account by a verification record
// seen in the same collection pass.
func (a *Aggregator) Collect(ctx context.Context, account string) Aggregate {
	agg := Aggregate{Account: strings.ToLower(account), FetchedAt: time.Now().UTC()}

	var fetched []Record
	for _, tag := range QueryTags {
		recs, err := a.client.QueryByTag(ctx, tag, account)
		if err != nil {
			a.logger.Warn("secondary ledger tag query failed",
				"account", account, "tag", string(tag), "error", err)
			agg.FailedTags = append(agg.FailedTags, tag)
			continue
		}
		fetched = append(fetched, recs...)
	}

	// Verification records observed in this pass link secondary-ledger
	// identifiers to the account for cross-reference attribution.
	aliases := make(map[string]struct{})
	for _, r := range fetched {
		if r.Tag == TagVerification && strings.EqualFold(r.Owner, account) && r.Account != "" {
			aliases[strings.ToLower(r.Account)] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	for _, r := range fetched {
		if !attributed(r, account, aliases) {
			continue
		}
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		agg.Records = append(agg.Records, r)
	}

	sort.SliceStable(agg.Records, func(i, j int) bool {
		return agg.Records[i].Timestamp.Before(agg.Records[j].Timestamp)
	})

	agg.Metrics = ComputeActivity(agg.Records)
	return agg
}

func attributed(r Record, account string, aliases map[string]struct{}) bool {
	if strings.EqualFold(r.Account, account) {
		return true
	}
	if r.Owner != "" && strings.EqualFold(r.Owner, account) {
		return true
	}
	_, ok := aliases[strings.ToLower(r.Account)]
	return ok
}
