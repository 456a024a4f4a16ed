package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/ledgerisk/internal/logging"
)

func newTestCache(maxSize int) *Bounded[string] {
	return New[string]("test", maxSize, time.Minute, logging.Discard())
}

func TestSetGet(t *testing.T) {
	c := newTestCache(10)

	c.Set("a", "alpha", time.Minute)
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for key a")
	}
	if got != "alpha" {
		t.Errorf("got %q, want alpha", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestGet_ExpiredEntryIsRemovedAndMisses(t *testing.T) {
	c := newTestCache(10)

	c.Set("a", "alpha", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to read as absent")
	}
	if c.Len() != 0 {
		t.Errorf("expected lazy removal of expired entry, have %d entries", c.Len())
	}

	s := c.Stats()
	if s.Misses != 1 {
		t.Errorf("misses = %d, want 1", s.Misses)
	}
	if s.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", s.Evictions)
	}
}

func TestSet_ZeroTTLNeverExpires(t *testing.T) {
	c := newTestCache(10)

	c.Set("pinned", "v", 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("pinned"); !ok {
		t.Error("entry with no TTL should not expire")
	}
}

func TestSet_AtCapacityEvictsOldestAccess(t *testing.T) {
	c := newTestCache(2)

	c.Set("a", "1", time.Minute)
	time.Sleep(2 * time.Millisecond)
	c.Set("b", "2", time.Minute)
	time.Sleep(2 * time.Millisecond)

	// Touch a after b's insert so b holds the oldest last-access time.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a present")
	}
	time.Sleep(2 * time.Millisecond)

	c.Set("c", "3", time.Minute)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b evicted as least recently accessed")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a retained after recent access")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c present after insert")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestSet_OverwriteKeyDoesNotEvict(t *testing.T) {
	c := newTestCache(2)

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	c.Set("a", "updated", time.Minute)

	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if got, _ := c.Get("a"); got != "updated" {
		t.Errorf("got %q, want updated", got)
	}
	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("evictions = %d, want 0", got)
	}
}

func TestGetOrCompute_CachesSuccessfulCompute(t *testing.T) {
	c := newTestCache(10)

	calls := 0
	compute := func() (string, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrCompute("k", time.Minute, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "computed" {
		t.Errorf("got %q, want computed", v)
	}

	if _, err := c.GetOrCompute("k", time.Minute, compute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestGetOrCompute_ErrorIsNotCached(t *testing.T) {
	c := newTestCache(10)

	boom := errors.New("upstream down")
	calls := 0
	failing := func() (string, error) {
		calls++
		return "", boom
	}

	if _, err := c.GetOrCompute("k", time.Minute, failing); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if c.Has("k") {
		t.Error("failed compute must not be cached")
	}
	if _, err := c.GetOrCompute("k", time.Minute, failing); !errors.Is(err, boom) {
		t.Fatalf("expected compute error on retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("compute ran %d times, want 2", calls)
	}
}

func TestHas(t *testing.T) {
	c := newTestCache(10)

	c.Set("live", "v", time.Minute)
	c.Set("dead", "v", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	if !c.Has("live") {
		t.Error("expected Has true for live entry")
	}
	if c.Has("dead") {
		t.Error("expected Has false for expired entry")
	}
	if c.Has("absent") {
		t.Error("expected Has false for absent key")
	}

	// Containment checks must not skew the hit/miss counters.
	s := c.Stats()
	if s.Hits != 0 || s.Misses != 0 {
		t.Errorf("hits/misses = %d/%d, want 0/0", s.Hits, s.Misses)
	}
}

func TestDelete_NotCountedAsEviction(t *testing.T) {
	c := newTestCache(10)

	c.Set("a", "v", time.Minute)
	c.Delete("a")

	if c.Has("a") {
		t.Error("expected a removed")
	}
	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("evictions = %d, want 0", got)
	}
}

func TestStats_HitRate(t *testing.T) {
	c := newTestCache(10)

	c.Set("a", "v", time.Minute)
	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Get("c")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 2 {
		t.Fatalf("hits/misses = %d/%d, want 2/2", s.Hits, s.Misses)
	}
	if s.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", s.HitRate)
	}
	if s.Sets != 1 {
		t.Errorf("sets = %d, want 1", s.Sets)
	}
	if s.Size != 1 {
		t.Errorf("size = %d, want 1", s.Size)
	}
}

func TestStats_EmptyCacheHasZeroHitRate(t *testing.T) {
	c := newTestCache(10)
	if got := c.Stats().HitRate; got != 0 {
		t.Errorf("hit rate = %v, want 0", got)
	}
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	c := newTestCache(10)

	c.Set("dead1", "v", time.Nanosecond)
	c.Set("dead2", "v", time.Nanosecond)
	c.Set("live", "v", time.Minute)
	time.Sleep(5 * time.Millisecond)

	c.sweep()

	if c.Len() != 1 {
		t.Errorf("len = %d, want 1 after sweep", c.Len())
	}
	s := c.Stats()
	if s.Cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", s.Cleanups)
	}
	if s.Evictions != 2 {
		t.Errorf("evictions = %d, want 2", s.Evictions)
	}
	if !c.Has("live") {
		t.Error("sweep must not remove live entries")
	}
}

func TestStartStop(t *testing.T) {
	c := New[string]("lifecycle", 10, 5*time.Millisecond, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	c.Set("dead", "v", time.Nanosecond)
	time.Sleep(25 * time.Millisecond)

	if c.Has("dead") {
		t.Error("expected sweep loop to remove expired entry")
	}

	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(10)

	c.Set("a", "v", time.Minute)
	c.Set("b", "v", time.Minute)
	c.Get("a")
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
	// Counters are cumulative across clears.
	if got := c.Stats().Hits; got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
}
