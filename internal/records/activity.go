package records

import (
	"time"
)

// ActivityMetrics summarizes an account's secondary-ledger footprint.
// Computed fresh per assessment, never persisted.
type ActivityMetrics struct {
	RecordCount   int       `json:"recordCount"`
	FirstActivity time.Time `json:"firstActivity"`
	LastActivity  time.Time `json:"lastActivity"`
	RecordsPerDay float64   `json:"recordsPerDay"`
	DistinctTags  int       `json:"distinctTags"`
}

// ComputeActivity derives metrics from an attributed record set. Activity
// spans shorter than one day are treated as one day when computing frequency.
func ComputeActivity(recs []Record) ActivityMetrics {
	m := ActivityMetrics{RecordCount: len(recs)}
	if len(recs) == 0 {
		return m
	}

	tags := make(map[Tag]struct{})
	first, last := recs[0].Timestamp, recs[0].Timestamp
	for _, r := range recs {
		tags[r.Tag] = struct{}{}
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}

	days := last.Sub(first).Hours() / 24
	if days < 1 {
		days = 1
	}

	m.FirstActivity = first
	m.LastActivity = last
	m.RecordsPerDay = float64(len(recs)) / days
	m.DistinctTags = len(tags)
	return m
}
