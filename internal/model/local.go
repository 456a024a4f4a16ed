package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultModelTimeout bounds one model invocation.
const DefaultModelTimeout = 10 * time.Second

// LocalClient runs the model as a subprocess: features go in as JSON on
// stdin, the prediction comes back as JSON on stdout. Any non-zero exit,
// timeout, or malformed output is a stage failure for the chain to absorb.
type LocalClient struct {
	path    string
	timeout time.Duration
}

var _ Client = (*LocalClient)(nil)

// NewLocalClient creates a subprocess model client for the given binary.
func NewLocalClient(path string, timeout time.Duration) *LocalClient {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &LocalClient{path: path, timeout: timeout}
}

// Mode returns "local".
func (c *LocalClient) Mode() string { return ModeLocal }

// Predict invokes the model binary once.
func (c *LocalClient) Predict(ctx context.Context, f Features) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("model: encode features: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 256 {
			detail = detail[:256]
		}
		if detail != "" {
			return nil, fmt.Errorf("model: %s: %w: %s", c.path, err, detail)
		}
		return nil, fmt.Errorf("model: %s: %w", c.path, err)
	}

	var pred Prediction
	if err := json.Unmarshal(stdout.Bytes(), &pred); err != nil {
		return nil, fmt.Errorf("model: decode output: %w", err)
	}
	if err := validatePrediction(&pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// validatePrediction rejects out-of-range model output rather than letting
// it leak into assessments.
func validatePrediction(p *Prediction) error {
	if p.Score < 0 || p.Score > 100 {
		return fmt.Errorf("model: score %d out of range", p.Score)
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		return fmt.Errorf("model: confidence %v out of range", p.Confidence)
	}
	return nil
}
