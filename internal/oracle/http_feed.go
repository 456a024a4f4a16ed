package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultFeedTimeout bounds each feed request.
const DefaultFeedTimeout = 5 * time.Second

// HTTPFeedConfig configures one remote oracle feed.
type HTTPFeedConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPFeed talks to a remote oracle over JSON HTTP.
type HTTPFeed struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// Compile-time interface check
var _ Feed = (*HTTPFeed)(nil)

// NewHTTPFeed creates an oracle feed client.
func NewHTTPFeed(cfg HTTPFeedConfig) (*HTTPFeed, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("oracle: base URL required")
	}
	name := cfg.Name
	if name == "" {
		name = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	return &HTTPFeed{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the feed's configured name.
func (f *HTTPFeed) Name() string { return f.name }

// GetCreditScore fetches the account's external-scale credit score.
// A feed that has no score for the account returns (nil, nil).
func (f *HTTPFeed) GetCreditScore(ctx context.Context, account string) (*float64, error) {
	var out struct {
		Score *float64 `json:"score"`
	}
	if err := f.get(ctx, "/credit-score", account, &out); err != nil {
		return nil, err
	}
	return out.Score, nil
}

// GetMarketRisk fetches current market risk signals.
func (f *HTTPFeed) GetMarketRisk(ctx context.Context, account string) (*MarketRisk, error) {
	var out MarketRisk
	if err := f.get(ctx, "/market-risk", account, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCrossChainActivity fetches the account's per-chain activity map.
func (f *HTTPFeed) GetCrossChainActivity(ctx context.Context, account string) (map[string]ChainActivity, error) {
	var out struct {
		Chains map[string]ChainActivity `json:"chains"`
	}
	if err := f.get(ctx, "/cross-chain", account, &out); err != nil {
		return nil, err
	}
	return out.Chains, nil
}

func (f *HTTPFeed) get(ctx context.Context, path, account string, v any) error {
	u, err := url.Parse(f.baseURL + path)
	if err != nil {
		return fmt.Errorf("oracle: build url: %w", err)
	}
	q := u.Query()
	q.Set("account", account)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: %s %s: %w", f.name, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		// No data for this account; not a feed failure.
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("oracle: %s %s: status %d: %s", f.name, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("oracle: %s %s: decode: %w", f.name, path, err)
	}
	return nil
}
