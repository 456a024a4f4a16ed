package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/ledgerisk/internal/circuitbreaker"
)

const account = "0xaaaa000000000000000000000000000000000001"

func seededFeed(name string) *MemoryFeed {
	f := NewMemoryFeed(name)
	f.SetCreditScore(account, 720)
	f.SetMarketRisk(account, MarketRisk{Volatility: 30, LiquidityRisk: 10})
	f.SetCrossChain(account, map[string]ChainActivity{
		"base": {TxCount: 12, LastActivity: time.Now(), FailureRate: 0.05},
	})
	return f
}

func TestService_FetchFromPrimary(t *testing.T) {
	primary := seededFeed("chainlink")
	svc := NewService(primary)

	d, err := svc.Fetch(context.Background(), account)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d.Feed != "chainlink" {
		t.Errorf("feed = %q, want chainlink", d.Feed)
	}
	if d.CreditScore == nil || *d.CreditScore != 720 {
		t.Errorf("creditScore = %v, want 720", d.CreditScore)
	}
	if d.MarketRisk == nil || d.MarketRisk.Volatility != 30 {
		t.Errorf("marketRisk = %+v, want volatility 30", d.MarketRisk)
	}
	if len(d.CrossChain) != 1 {
		t.Errorf("crossChain = %v, want one chain", d.CrossChain)
	}
	if d.Empty() {
		t.Error("populated data reported Empty")
	}
}

func TestService_FallbackCoversPrimaryFailure(t *testing.T) {
	primary := NewMemoryFeed("chainlink")
	primary.FailWith(errors.New("feed down"))
	fallback := seededFeed("backup")
	svc := NewService(primary, WithFallback(fallback))

	d, err := svc.Fetch(context.Background(), account)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d.Feed != "backup" {
		t.Errorf("feed = %q, want backup", d.Feed)
	}
	if d.CreditScore == nil || *d.CreditScore != 720 {
		t.Errorf("creditScore = %v, want 720 from fallback", d.CreditScore)
	}
}

func TestService_AllFeedsFailing(t *testing.T) {
	primary := NewMemoryFeed("chainlink")
	primary.FailWith(errors.New("feed down"))
	fallback := NewMemoryFeed("backup")
	fallback.FailWith(errors.New("also down"))
	svc := NewService(primary, WithFallback(fallback))

	d, err := svc.Fetch(context.Background(), account)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !d.Empty() {
		t.Errorf("data = %+v, want empty", d)
	}
}

func TestService_NoDataIsNotAFailure(t *testing.T) {
	// Feed is healthy but has never seen this account.
	svc := NewService(NewMemoryFeed("chainlink"))

	d, err := svc.Fetch(context.Background(), account)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !d.Empty() {
		t.Errorf("data = %+v, want empty", d)
	}
}

func TestService_BreakerStopsHammeringDeadFeed(t *testing.T) {
	primary := NewMemoryFeed("chainlink")
	primary.FailWith(errors.New("feed down"))
	fallback := seededFeed("backup")
	// Threshold 3: the three signal calls of the first Fetch trip it.
	svc := NewService(primary,
		WithFallback(fallback),
		WithBreaker(circuitbreaker.New(3, time.Minute)))

	if _, err := svc.Fetch(context.Background(), account); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	callsAfterTrip := primary.Calls()

	if _, err := svc.Fetch(context.Background(), account); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if primary.Calls() != callsAfterTrip {
		t.Errorf("primary called %d times after trip, want circuit to hold at %d",
			primary.Calls(), callsAfterTrip)
	}
}

func TestService_CanceledContext(t *testing.T) {
	svc := NewService(seededFeed("chainlink"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := svc.Fetch(ctx, account)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !d.Empty() {
		t.Errorf("data = %+v, want empty", d)
	}
}
