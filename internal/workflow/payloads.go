package workflow

import (
	"encoding/json"
	"fmt"
)

// Capability request payloads. Each type is the exact wire shape one stage's
// capability expects; the registry builders are the only place the
// stage-to-stage field projections are encoded.

// ClassifyRequest asks the classifier capability to label a raw idea.
type ClassifyRequest struct {
	Idea string `json:"idea"`
}

// ClarifyRequest carries the running transcript to the clarifier capability.
// Content is always plain text on the wire; structured turns are serialized
// before sending.
type ClarifyRequest struct {
	Messages []WireTurn `json:"messages"`
}

// WireTurn is a single transcript turn as sent to the clarifier capability.
type WireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProductRequest carries the clarified requirements to the product capability.
type ProductRequest struct {
	Requirements string `json:"requirements"`
}

// CustomerRequest projects only the product stage's product_data field.
type CustomerRequest struct {
	ProductData json.RawMessage `json:"product_data"`
}

// RiskRequest carries the customer stage's customer_data under the
// engineer_data key the risk capability expects. See buildRiskPayload.
type RiskRequest struct {
	EngineerData json.RawMessage `json:"engineer_data"`
}

// EngineerRequest projects only the customer stage's customer_data field.
type EngineerRequest struct {
	CustomerData json.RawMessage `json:"customer_data"`
}

// DiagramRequest carries a merged project summary to the diagram capability.
type DiagramRequest struct {
	ProjectSummary map[string]any `json:"project_summary"`
}

// SummaryRequest carries the accumulated stage outputs to the summarizer.
type SummaryRequest struct {
	FinalData FinalData `json:"final_data"`
}

// FinalData is the cross-stage join consumed by the summary capability.
type FinalData struct {
	ProductData  json.RawMessage `json:"product_data,omitempty"`
	CustomerData json.RawMessage `json:"customer_data,omitempty"`
	RiskData     json.RawMessage `json:"risk_data,omitempty"`
	EngineerData json.RawMessage `json:"engineer_data,omitempty"`
}

// Stage output projections. The stored payloads stay opaque blobs; these
// types name only the fields the next stage (or the diagram URL facet)
// actually extracts.

// ProductOutput is the projection of the product stage's stored payload.
type ProductOutput struct {
	ProductData json.RawMessage `json:"product_data"`
	DiagramURL  string          `json:"diagram_url,omitempty"`
}

// CustomerOutput is the projection of the customer stage's stored payload.
type CustomerOutput struct {
	CustomerData json.RawMessage `json:"customer_data"`
}

// RiskOutput is the projection of the risk stage's stored payload.
type RiskOutput struct {
	RiskData json.RawMessage `json:"risk_data"`
}

// EngineerOutput is the projection of the engineer stage's stored payload.
type EngineerOutput struct {
	EngineerData json.RawMessage `json:"engineer_data"`
}

// DiagramOutput is the projection of the diagram stage's stored payload.
type DiagramOutput struct {
	DiagramURL string `json:"diagram_url"`
}

func parseProductOutput(raw json.RawMessage) (*ProductOutput, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("product output missing")
	}
	var out ProductOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("product output: %w", err)
	}
	return &out, nil
}

func parseCustomerOutput(raw json.RawMessage) (*CustomerOutput, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("customer output missing")
	}
	var out CustomerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("customer output: %w", err)
	}
	return &out, nil
}

func parseRiskOutput(raw json.RawMessage) (*RiskOutput, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("risk output missing")
	}
	var out RiskOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("risk output: %w", err)
	}
	return &out, nil
}

func parseEngineerOutput(raw json.RawMessage) (*EngineerOutput, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("engineer output missing")
	}
	var out EngineerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("engineer output: %w", err)
	}
	return &out, nil
}

// parseDiagramURL extracts the diagram_url facet from a stage output, if
// present. Both the product and diagram stages may carry one.
func parseDiagramURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out DiagramOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return out.DiagramURL
}
