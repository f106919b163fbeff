package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/idea-workbench/internal/llm"
)

// stageTiers maps each stage to the model tier its reasoning needs.
var stageTiers = map[string]llm.ModelTier{
	"classifier": llm.TierLite,
	"clarify":    llm.TierStandard,
	"product":    llm.TierStandard,
	"customer":   llm.TierStandard,
	"risk":       llm.TierAdvanced,
	"engineer":   llm.TierStandard,
	"diagram":    llm.TierStandard,
	"summary":    llm.TierAdvanced,
}

// GeminiProvider serves stage capabilities from the Gemini API directly,
// with no separate backend. Output shapes match the HTTP backend's.
type GeminiProvider struct {
	client llm.Client
}

// NewGeminiProvider creates a provider over an existing LLM client.
func NewGeminiProvider(client llm.Client) *GeminiProvider {
	return &GeminiProvider{client: client}
}

// Invoke implements Invoker.
func (p *GeminiProvider) Invoke(ctx context.Context, stage string, _ uuid.UUID, payload json.RawMessage) (json.RawMessage, error) {
	preamble, ok := stagePrompts[stage]
	if !ok {
		return nil, fmt.Errorf("no prompt for stage %s", stage)
	}
	tier, ok := stageTiers[stage]
	if !ok {
		tier = llm.TierStandard
	}

	prompt := fmt.Sprintf("%s\n\nInput:\n%s", preamble, string(payload))
	text, err := p.client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return nil, fmt.Errorf("gemini %s call failed: %w", stage, err)
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("gemini %s returned invalid JSON", stage)
	}
	return json.RawMessage(text), nil
}

// Close releases the underlying LLM client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
