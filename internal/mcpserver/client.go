package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the risk API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AdminSecret string // Optional; enables monitor mutations
}

// RiskClient is a pure HTTP client for the risk assessment API.
type RiskClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRiskClient creates a new client for the risk API.
func NewRiskClient(cfg Config) *RiskClient {
	return &RiskClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *RiskClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// AssessAccount runs a fresh risk assessment for an account.
func (c *RiskClient) AssessAccount(ctx context.Context, account string, updateOnLedger bool) (json.RawMessage, error) {
	path := "/v1/accounts/" + account + "/assess"
	return c.doRequest(ctx, http.MethodPost, path, nil, map[string]any{
		"updateOnLedger": updateOnLedger,
	})
}

// GetRecommendations returns risk-reduction recommendations for an account.
func (c *RiskClient) GetRecommendations(ctx context.Context, account string) (json.RawMessage, error) {
	path := "/v1/accounts/" + account + "/recommendations"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// GetAssessmentHistory returns stored assessments for an account, newest first.
func (c *RiskClient) GetAssessmentHistory(ctx context.Context, account string, limit int) (json.RawMessage, error) {
	path := "/v1/accounts/" + account + "/assessments"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// GetMonitorStatus returns the monitor state and tracked accounts.
func (c *RiskClient) GetMonitorStatus(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/monitor/status", nil, nil)
}

// ListAlerts returns monitor alerts, optionally filtered by account.
func (c *RiskClient) ListAlerts(ctx context.Context, account string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if account != "" {
		q.Set("account", account)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/monitor/alerts", q, nil)
}

// TrackAccount adds an account to the monitor watch list. Requires AdminSecret.
func (c *RiskClient) TrackAccount(ctx context.Context, account string) (json.RawMessage, error) {
	path := "/v1/admin/monitor/accounts/" + account
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// GetCacheStats returns hit/miss statistics for every data cache.
func (c *RiskClient) GetCacheStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/cache/stats", nil, nil)
}
