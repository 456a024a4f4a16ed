package records

import (
	"context"
	"errors"
	"testing"

	"github.com/mbd888/ledgerisk/internal/logging"
)

func TestAuditWriter_SubmitAppendsRiskUpdate(t *testing.T) {
	store := NewMemoryClient()
	w := NewAuditWriter(store, logging.Discard())

	w.Submit("0xABC", 73, "combined")
	w.Wait()

	recs, err := store.QueryByTag(context.Background(), TagRiskUpdate, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.Account != "0xabc" {
		t.Errorf("account = %q, want lowercased 0xabc", rec.Account)
	}
	if rec.ID == "" {
		t.Error("expected generated record id")
	}
	update, ok := rec.Payload.(RiskUpdate)
	if !ok {
		t.Fatalf("payload type %T, want RiskUpdate", rec.Payload)
	}
	if update.Score != 73 || update.Source != "combined" {
		t.Errorf("payload = %+v, want score 73 from combined", update)
	}
}

func TestAuditWriter_FailureDoesNotPropagate(t *testing.T) {
	store := NewMemoryClient()
	store.FailAppend = errors.New("store offline")
	w := NewAuditWriter(store, logging.Discard())

	// Must not panic or block; the failure is logged and dropped.
	w.Submit("0xabc", 50, "heuristic")
	w.Wait()
}
