// Package capability defines the consumed analysis capability protocol:
// one request/response exchange per stage kind, correlated by project ID.
// Two providers implement it: a remote HTTP backend and a built-in
// Gemini-backed provider.
package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Invoker performs one capability call for a stage. The request payload is
// marshaled as-is; the response is the raw success payload. No retries are
// performed; failures surface immediately.
type Invoker interface {
	Invoke(ctx context.Context, stage string, projectID uuid.UUID, payload json.RawMessage) (json.RawMessage, error)
}

// HTTPError reports a non-2xx capability response.
type HTTPError struct {
	Stage      string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("capability %s returned status %d: %s", e.Stage, e.StatusCode, e.Body)
}
