package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/ledgerisk/internal/circuitbreaker"
	"github.com/mbd888/ledgerisk/internal/logging"
)

// ErrUnavailable is returned when no feed answered any signal request.
// Callers that hold a previous snapshot should serve it marked stale.
var ErrUnavailable = errors.New("oracle: no feed available")

// Service merges the three oracle signals across a primary feed and an
// optional fallback. Each signal is fetched independently: the primary is
// tried first, the fallback covers a primary failure, and a signal both
// feeds miss is simply absent from the result. A per-feed circuit breaker
// keeps a dead feed from being hammered on every fetch.
type Service struct {
	primary  Feed
	fallback Feed
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithFallback sets the feed tried when the primary fails.
func WithFallback(f Feed) ServiceOption {
	return func(s *Service) { s.fallback = f }
}

// WithBreaker sets the circuit breaker guarding feed calls.
func WithBreaker(b *circuitbreaker.Breaker) ServiceOption {
	return func(s *Service) { s.breaker = b }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates an oracle service over the given primary feed.
func NewService(primary Feed, opts ...ServiceOption) *Service {
	s := &Service{
		primary: primary,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuitbreaker.New(0, 0)
	}
	return s
}

// Fetch gathers all signals for an account. Partial results are normal;
// only when no feed answers anything does Fetch return ErrUnavailable.
func (s *Service) Fetch(ctx context.Context, account string) (Data, error) {
	d := Data{Account: account, FetchedAt: time.Now().UTC()}
	responded := false

	if v, feed, ok := fetchVia(ctx, s, "credit_score", func(ctx context.Context, f Feed) (*float64, error) {
		return f.GetCreditScore(ctx, account)
	}); ok {
		responded = true
		d.CreditScore = v
		d.Feed = feed
	}

	if v, feed, ok := fetchVia(ctx, s, "market_risk", func(ctx context.Context, f Feed) (*MarketRisk, error) {
		return f.GetMarketRisk(ctx, account)
	}); ok {
		responded = true
		d.MarketRisk = v
		if d.Feed == "" {
			d.Feed = feed
		}
	}

	if v, feed, ok := fetchVia(ctx, s, "cross_chain", func(ctx context.Context, f Feed) (map[string]ChainActivity, error) {
		return f.GetCrossChainActivity(ctx, account)
	}); ok {
		responded = true
		d.CrossChain = v
		if d.Feed == "" {
			d.Feed = feed
		}
	}

	if !responded {
		return d, ErrUnavailable
	}
	return d, nil
}

// fetchVia runs one signal call against the primary then the fallback,
// honoring the breaker. ok is true when some feed answered, even if the
// answer was "no data".
func fetchVia[T any](ctx context.Context, s *Service, op string, call func(context.Context, Feed) (T, error)) (T, string, bool) {
	var zero T
	for _, f := range []Feed{s.primary, s.fallback} {
		if f == nil {
			continue
		}
		if ctx.Err() != nil {
			return zero, "", false
		}
		if !s.breaker.Allow(f.Name()) {
			s.logger.Debug("oracle feed circuit open", "feed", f.Name(), "signal", op)
			continue
		}
		v, err := call(ctx, f)
		if err != nil {
			s.breaker.RecordFailure(f.Name())
			s.logger.Warn("oracle feed call failed",
				"feed", f.Name(), "signal", op, "error", err)
			continue
		}
		s.breaker.RecordSuccess(f.Name())
		return v, f.Name(), true
	}
	return zero, "", false
}
