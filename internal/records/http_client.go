package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds each record store request.
const DefaultHTTPTimeout = 10 * time.Second

// HTTPConfig configures the remote record store client.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient talks to a remote tag-addressable record store.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// Compile-time interface check
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a record store client.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("records: base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type queryResponse struct {
	Records []json.RawMessage `json:"records"`
}

// QueryByTag fetches records for one tag. Individual records that fail to
// decode are logged and skipped; the query itself only fails on transport or
// server errors.
func (c *HTTPClient) QueryByTag(ctx context.Context, tag Tag, account string) ([]Record, error) {
	u, err := url.Parse(c.baseURL + "/records")
	if err != nil {
		return nil, fmt.Errorf("records: build query url: %w", err)
	}
	q := u.Query()
	q.Set("tag", string(tag))
	q.Set("account", account)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("records: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("records: query tag %s: %w", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("records: query tag %s: status %d: %s", tag, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("records: decode query response: %w", err)
	}

	out := make([]Record, 0, len(qr.Records))
	for _, raw := range qr.Records {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("skipping undecodable record", "tag", string(tag), "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Append adds one record to the store.
func (c *HTTPClient) Append(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("records: encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/records", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("records: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("records: append: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("records: append: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
