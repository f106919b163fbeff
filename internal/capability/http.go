package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// stageEndpoints maps each stage kind to its path on the remote backend.
var stageEndpoints = map[string]string{
	"classifier": "/classify",
	"clarify":    "/clarify",
	"product":    "/generate_product",
	"customer":   "/generate_customer",
	"risk":       "/generate_risk",
	"engineer":   "/generate_engineer",
	"diagram":    "/generate_diagram",
	"summary":    "/generate_summary",
}

// maxResponseBytes bounds capability response reads.
const maxResponseBytes = 4 << 20

// HTTPClient invokes stage capabilities on a remote HTTP backend. One POST
// per call; the project ID travels in the X-Project-Id header.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a capability client for the given backend base URL.
// Per-call deadlines come from the caller's context; the transport timeout
// is a backstop.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Invoke implements Invoker.
func (c *HTTPClient) Invoke(ctx context.Context, stage string, projectID uuid.UUID, payload json.RawMessage) (json.RawMessage, error) {
	endpoint, ok := stageEndpoints[stage]
	if !ok {
		return nil, fmt.Errorf("no capability endpoint for stage %s", stage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build capability request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project-Id", projectID.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capability request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read capability response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Stage: stage, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("capability %s returned invalid JSON", stage)
	}
	return body, nil
}
