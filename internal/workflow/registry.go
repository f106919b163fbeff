// Package workflow implements the idea refinement pipeline: the stage
// registry, the workflow state machine, the clarification sub-dialogue,
// and rehydration of workflow position from persisted stage records.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Stage identifies one step of the analysis pipeline.
type Stage string

// Stage kinds. Classifier is a single-shot annotation and does not
// participate in pipeline ordering.
const (
	StageClassifier Stage = "classifier"
	StageClarify    Stage = "clarify"
	StageProduct    Stage = "product"
	StageCustomer   Stage = "customer"
	StageRisk       Stage = "risk"
	StageEngineer   Stage = "engineer"
	StageDiagram    Stage = "diagram"
	StageSummary    Stage = "summary"
)

// Pipeline is the fixed stage order. Clarify is the only optional stage;
// all others are mandatory and strictly ordered.
var Pipeline = []Stage{
	StageClarify,
	StageProduct,
	StageCustomer,
	StageRisk,
	StageEngineer,
	StageDiagram,
	StageSummary,
}

// BuildInput carries everything a payload builder may draw from: the
// project title and the authoritative output of each recorded stage.
type BuildInput struct {
	Title   string
	Outputs map[Stage]json.RawMessage
}

// StageDefinition describes one pipeline stage: its position, the prior
// stages whose outputs its payload builder consumes, whether it may be
// bypassed, and the builder itself. Pure configuration, no side effects.
type StageDefinition struct {
	Stage    Stage
	Index    int
	Requires []Stage
	Optional bool
	Build    func(in BuildInput) (json.RawMessage, error)
}

// Registry maps each ordered stage to its definition.
var Registry = map[Stage]StageDefinition{
	StageClarify: {
		Stage:    StageClarify,
		Index:    0,
		Requires: nil,
		Optional: true,
		Build:    buildClarifyPayload,
	},
	StageProduct: {
		Stage:    StageProduct,
		Index:    1,
		Requires: []Stage{StageClarify},
		Build:    buildProductPayload,
	},
	StageCustomer: {
		Stage:    StageCustomer,
		Index:    2,
		Requires: []Stage{StageProduct},
		Build:    buildCustomerPayload,
	},
	StageRisk: {
		Stage:    StageRisk,
		Index:    3,
		Requires: []Stage{StageCustomer},
		Build:    buildRiskPayload,
	},
	StageEngineer: {
		Stage:    StageEngineer,
		Index:    4,
		Requires: []Stage{StageCustomer},
		Build:    buildEngineerPayload,
	},
	StageDiagram: {
		Stage:    StageDiagram,
		Index:    5,
		Requires: []Stage{StageProduct, StageEngineer},
		Build:    buildDiagramPayload,
	},
	StageSummary: {
		Stage:    StageSummary,
		Index:    6,
		Requires: []Stage{StageProduct, StageCustomer, StageRisk, StageEngineer},
		Build:    buildSummaryPayload,
	},
}

// StageIndex returns the pipeline position of an ordered stage, or -1 for
// unknown or unordered kinds.
func StageIndex(stage Stage) int {
	def, ok := Registry[stage]
	if !ok {
		return -1
	}
	return def.Index
}

// ValidStage reports whether s names a known stage kind (ordered or not).
func ValidStage(s string) bool {
	if Stage(s) == StageClassifier {
		return true
	}
	_, ok := Registry[Stage(s)]
	return ok
}

// BuildPayload constructs the capability request for a stage from prior
// stage outputs. It fails if a required prior output is absent or has an
// unexpected shape.
func BuildPayload(stage Stage, in BuildInput) (json.RawMessage, error) {
	def, ok := Registry[stage]
	if !ok {
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}
	return def.Build(in)
}

func buildClarifyPayload(in BuildInput) (json.RawMessage, error) {
	// The opening clarifier message is synthesized from the title; later
	// rounds are driven by the sub-dialogue, not the registry.
	req := ClarifyRequest{Messages: []WireTurn{{
		Role:    RoleUser,
		Content: openingMessage(in.Title),
	}}}
	return json.Marshal(req)
}

func buildProductPayload(in BuildInput) (json.RawMessage, error) {
	// Clarify is optional: with no transcript the raw idea title stands in
	// for the gathered requirements.
	requirements := in.Title
	if raw, ok := in.Outputs[StageClarify]; ok {
		state, err := ParseClarifyState(raw)
		if err != nil {
			return nil, fmt.Errorf("clarify output: %w", err)
		}
		if r := state.Requirements(); r != "" {
			requirements = r
		}
	}
	return json.Marshal(ProductRequest{Requirements: requirements})
}

func buildCustomerPayload(in BuildInput) (json.RawMessage, error) {
	product, err := parseProductOutput(in.Outputs[StageProduct])
	if err != nil {
		return nil, err
	}
	return json.Marshal(CustomerRequest{ProductData: product.ProductData})
}

// buildRiskPayload sends the customer stage's data under the engineer_data
// key. The upstream risk capability expects that key; the relabeling is
// preserved exactly as observed, not generalized into a passthrough.
func buildRiskPayload(in BuildInput) (json.RawMessage, error) {
	customer, err := parseCustomerOutput(in.Outputs[StageCustomer])
	if err != nil {
		return nil, err
	}
	return json.Marshal(RiskRequest{EngineerData: customer.CustomerData})
}

func buildEngineerPayload(in BuildInput) (json.RawMessage, error) {
	customer, err := parseCustomerOutput(in.Outputs[StageCustomer])
	if err != nil {
		return nil, err
	}
	return json.Marshal(EngineerRequest{CustomerData: customer.CustomerData})
}

func buildDiagramPayload(in BuildInput) (json.RawMessage, error) {
	product, err := parseProductOutput(in.Outputs[StageProduct])
	if err != nil {
		return nil, err
	}
	engineer, err := parseEngineerOutput(in.Outputs[StageEngineer])
	if err != nil {
		return nil, err
	}

	// project_summary merges the product and engineer data objects with the
	// title, matching the shape the diagram capability consumes.
	summary := map[string]any{}
	mergeObject(summary, product.ProductData)
	mergeObject(summary, engineer.EngineerData)
	summary["title"] = in.Title

	return json.Marshal(DiagramRequest{ProjectSummary: summary})
}

func buildSummaryPayload(in BuildInput) (json.RawMessage, error) {
	product, err := parseProductOutput(in.Outputs[StageProduct])
	if err != nil {
		return nil, err
	}
	customer, err := parseCustomerOutput(in.Outputs[StageCustomer])
	if err != nil {
		return nil, err
	}
	risk, err := parseRiskOutput(in.Outputs[StageRisk])
	if err != nil {
		return nil, err
	}
	engineer, err := parseEngineerOutput(in.Outputs[StageEngineer])
	if err != nil {
		return nil, err
	}
	return json.Marshal(SummaryRequest{FinalData: FinalData{
		ProductData:  product.ProductData,
		CustomerData: customer.CustomerData,
		RiskData:     risk.RiskData,
		EngineerData: engineer.EngineerData,
	}})
}

// mergeObject flattens a JSON object into dst; non-object payloads are
// ignored rather than failing the build.
func mergeObject(dst map[string]any, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	for k, v := range fields {
		dst[k] = v
	}
}
