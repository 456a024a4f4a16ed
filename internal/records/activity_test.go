package records

import (
	"math"
	"testing"
	"time"
)

func rec(id string, tag Tag, ts time.Time) Record {
	return Record{ID: id, Tag: tag, Account: "acct-1", Timestamp: ts}
}

func TestComputeActivity_Empty(t *testing.T) {
	m := ComputeActivity(nil)
	if m.RecordCount != 0 || m.RecordsPerDay != 0 || m.DistinctTags != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestComputeActivity_SingleRecordCountsOneDay(t *testing.T) {
	ts := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m := ComputeActivity([]Record{rec("r1", TagRepayment, ts)})

	if m.RecordCount != 1 {
		t.Errorf("count = %d, want 1", m.RecordCount)
	}
	if m.RecordsPerDay != 1 {
		t.Errorf("per day = %v, want 1", m.RecordsPerDay)
	}
	if !m.FirstActivity.Equal(ts) || !m.LastActivity.Equal(ts) {
		t.Errorf("first/last = %v/%v, want both %v", m.FirstActivity, m.LastActivity, ts)
	}
}

func TestComputeActivity_SpansAndFrequency(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		rec("r1", TagRepayment, start),
		rec("r2", TagRepayment, start.Add(5*24*time.Hour)),
		rec("r3", TagVerification, start.Add(10*24*time.Hour)),
		rec("r4", TagLoanStatus, start.Add(20*24*time.Hour)),
	}

	m := ComputeActivity(recs)

	if m.RecordCount != 4 {
		t.Errorf("count = %d, want 4", m.RecordCount)
	}
	// 4 records over a 20-day span.
	if math.Abs(m.RecordsPerDay-0.2) > 1e-9 {
		t.Errorf("per day = %v, want 0.2", m.RecordsPerDay)
	}
	if m.DistinctTags != 3 {
		t.Errorf("distinct tags = %d, want 3", m.DistinctTags)
	}
	if !m.FirstActivity.Equal(start) {
		t.Errorf("first = %v, want %v", m.FirstActivity, start)
	}
}

func TestComputeActivity_UnorderedInput(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	recs := []Record{
		rec("r2", TagRepayment, start.Add(48*time.Hour)),
		rec("r1", TagRepayment, start),
		rec("r3", TagRepayment, start.Add(24*time.Hour)),
	}

	m := ComputeActivity(recs)

	if !m.FirstActivity.Equal(start) {
		t.Errorf("first = %v, want %v", m.FirstActivity, start)
	}
	if !m.LastActivity.Equal(start.Add(48 * time.Hour)) {
		t.Errorf("last = %v, want %v", m.LastActivity, start.Add(48*time.Hour))
	}
}
