package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteClient calls a model served over HTTP. The service exposes a single
// POST /predict taking Features and returning a Prediction.
type RemoteClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*RemoteClient)(nil)

// NewRemoteClient creates an HTTP model client.
func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Mode returns "remote".
func (c *RemoteClient) Mode() string { return ModeRemote }

// Predict posts the features and decodes the prediction.
func (c *RemoteClient) Predict(ctx context.Context, f Features) (*Prediction, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("model: encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("model: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model: predict: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model: predict: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("model: decode output: %w", err)
	}
	if err := validatePrediction(&pred); err != nil {
		return nil, err
	}
	return &pred, nil
}
