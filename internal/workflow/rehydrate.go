package workflow

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jonathan/idea-workbench/internal/db"
)

// Position is the derived workflow position shown to callers. Stage
// positions use the stage kind name; two pre-pipeline positions cover a
// project with no ordered records yet.
type Position string

// Pre-pipeline positions.
const (
	// PositionInput means no stage activity has been recorded at all.
	PositionInput Position = "input"
	// PositionClassifying means only the classification annotation exists.
	PositionClassifying Position = "classifying"
)

// PositionClarifying is the display position while the clarification
// sub-dialogue is the furthest recorded stage.
const PositionClarifying = Position("clarifying")

// positionFor maps an ordered stage kind to its display position.
func positionFor(stage Stage) Position {
	if stage == StageClarify {
		return PositionClarifying
	}
	return Position(stage)
}

// State is the full derived workflow state returned by every operation.
type State struct {
	ProjectID      uuid.UUID              `json:"project_id"`
	Title          string                 `json:"title"`
	Status         string                 `json:"status"`
	Position       Position               `json:"position"`
	SubState       SubState               `json:"sub_state,omitempty"`
	DiagramURL     string                 `json:"diagram_url,omitempty"`
	Classification json.RawMessage        `json:"classification,omitempty"`
	StageOutputs   map[Stage]json.RawMessage `json:"stage_outputs,omitempty"`
	OpenQuestions  []QuestionAnswer       `json:"open_questions,omitempty"`
}

// OutputsByStage indexes stage records by kind. Later records win, which
// cannot happen for a valid set (at most one authoritative record per kind).
func OutputsByStage(records []db.StageRecord) map[Stage]json.RawMessage {
	outputs := make(map[Stage]json.RawMessage, len(records))
	for _, rec := range records {
		outputs[Stage(rec.Stage)] = rec.Payload
	}
	return outputs
}

// PositionOf computes the workflow position purely from the record set:
// the latest stage kind, in registry order, for which a record exists.
// Partial or inconsistent sets are tolerated; ordering is enforced only by
// Advance, never here.
func PositionOf(records []db.StageRecord) Position {
	outputs := OutputsByStage(records)
	for i := len(Pipeline) - 1; i >= 0; i-- {
		if _, ok := outputs[Pipeline[i]]; ok {
			return positionFor(Pipeline[i])
		}
	}
	if _, ok := outputs[StageClassifier]; ok {
		return PositionClassifying
	}
	return PositionInput
}

// Rehydrate reconstructs the full derived state of a project from its
// stored records. Pure: the same record set always yields the same state,
// regardless of insertion order.
func Rehydrate(project *db.Project, records []db.StageRecord) *State {
	outputs := OutputsByStage(records)
	position := PositionOf(records)

	state := &State{
		ProjectID:      project.ID,
		Title:          project.Title,
		Status:         project.Status,
		Position:       position,
		DiagramURL:     project.DiagramURL,
		Classification: outputs[StageClassifier],
		StageOutputs:   make(map[Stage]json.RawMessage, len(outputs)),
	}
	for stage, payload := range outputs {
		if stage == StageClassifier {
			continue
		}
		state.StageOutputs[stage] = payload
	}

	if position == PositionClarifying {
		if clarify, err := ParseClarifyState(outputs[StageClarify]); err == nil {
			state.SubState = clarify.SubState()
			state.OpenQuestions = clarify.OpenQuestions()
		}
	}

	return state
}
