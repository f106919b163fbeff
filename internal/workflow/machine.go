package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/idea-workbench/internal/capability"
	"github.com/jonathan/idea-workbench/internal/db"
	"github.com/jonathan/idea-workbench/internal/schemas"
)

// Store is the persistence contract the machine consumes. Implemented by
// *db.DB; tests substitute an in-memory fake.
type Store interface {
	CreateProject(ctx context.Context, userID uuid.UUID, title string) (*db.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*db.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
	SetProjectStatus(ctx context.Context, id uuid.UUID, status string) error
	SetProjectDiagramURL(ctx context.Context, id uuid.UUID, url string) error
	SaveStageRecord(ctx context.Context, projectID uuid.UUID, stage string, payload json.RawMessage) error
	GetStageRecord(ctx context.Context, projectID uuid.UUID, stage string) (*db.StageRecord, error)
	ListStageRecords(ctx context.Context, projectID uuid.UUID) ([]db.StageRecord, error)
}

// Defaults for machine options.
const (
	DefaultClarifyMaxRounds = 10
	DefaultStageTimeout     = 120 * time.Second
)

// Options tunes machine behavior.
type Options struct {
	// ClarifyMaxRounds caps clarification rounds; past it only an explicit
	// finish ends the sub-dialogue. Zero means the default.
	ClarifyMaxRounds int
	// StageTimeout bounds each capability call. Zero means the default.
	StageTimeout time.Duration
}

// Machine is the workflow state machine. One instance serves all projects;
// it allows at most one in-flight transition per project and keeps no
// per-project state beyond that guard; position is always derived from
// the store.
type Machine struct {
	store   Store
	invoker capability.Invoker

	clarifyMaxRounds int
	stageTimeout     time.Duration

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewMachine creates a workflow machine over the given store and
// capability provider.
func NewMachine(store Store, invoker capability.Invoker, opts Options) *Machine {
	if opts.ClarifyMaxRounds <= 0 {
		opts.ClarifyMaxRounds = DefaultClarifyMaxRounds
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	return &Machine{
		store:            store,
		invoker:          invoker,
		clarifyMaxRounds: opts.ClarifyMaxRounds,
		stageTimeout:     opts.StageTimeout,
		inflight:         make(map[uuid.UUID]struct{}),
	}
}

// acquire claims the single transition slot for a project.
func (m *Machine) acquire(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return ErrProjectBusy
	}
	m.inflight[id] = struct{}{}
	return nil
}

func (m *Machine) release(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
}

// ownedProject loads a project and enforces ownership.
func (m *Machine) ownedProject(ctx context.Context, userID, projectID uuid.UUID) (*db.Project, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, &PersistenceError{Op: "load project", Err: err}
	}
	if project == nil {
		return nil, ErrNotFound
	}
	if project.UserID != userID {
		return nil, ErrForbidden
	}
	return project, nil
}

// invoke performs one bounded capability call for a stage.
func (m *Machine) invoke(ctx context.Context, stage Stage, projectID uuid.UUID, payload json.RawMessage) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.stageTimeout)
	defer cancel()

	result, err := m.invoker.Invoke(callCtx, string(stage), projectID, payload)
	if err != nil {
		return nil, &CapabilityError{
			Stage:   stage,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return result, nil
}

// deriveState reloads the project and records and rehydrates.
func (m *Machine) deriveState(ctx context.Context, projectID uuid.UUID) (*State, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, &PersistenceError{Op: "load project", Err: err}
	}
	if project == nil {
		return nil, ErrNotFound
	}
	records, err := m.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return nil, &PersistenceError{Op: "list stage records", Err: err}
	}
	return Rehydrate(project, records), nil
}

// SubmitIdea creates a project for a raw idea, then runs classification
// and the clarifier opening call in parallel. The project creation is
// durable before either call starts. Classification failure is logged and
// ignored (the label is an annotation, not a pipeline stage); a clarifier
// failure is returned alongside the created project's state so the caller
// can report partial success.
func (m *Machine) SubmitIdea(ctx context.Context, userID uuid.UUID, title string) (*State, error) {
	project, err := m.store.CreateProject(ctx, userID, title)
	if err != nil {
		return nil, &PersistenceError{Op: "create project", Err: err}
	}

	if err := m.acquire(project.ID); err != nil {
		return nil, err
	}
	defer m.release(project.ID)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		payload, err := json.Marshal(ClassifyRequest{Idea: title})
		if err != nil {
			return nil
		}
		result, err := m.invoke(gctx, StageClassifier, project.ID, payload)
		if err != nil {
			log.Printf("classification failed for project %s: %v", project.ID, err)
			return nil
		}
		if err := schemas.ValidateClassification(result); err != nil {
			log.Printf("discarding malformed classification for project %s: %v", project.ID, err)
			return nil
		}
		if err := m.store.SaveStageRecord(gctx, project.ID, string(StageClassifier), result); err != nil {
			log.Printf("saving classification for project %s: %v", project.ID, err)
		}
		return nil
	})

	var clarifyErr error
	g.Go(func() error {
		// Surfaced separately so a clarifier failure does not cancel the
		// classification goroutine.
		clarifyErr = m.openClarification(gctx, project)
		return nil
	})

	_ = g.Wait()

	state, stateErr := m.deriveState(ctx, project.ID)
	if stateErr != nil {
		return nil, stateErr
	}
	return state, clarifyErr
}

// openClarification sends the synthesized opening message and records the
// initial transcript.
func (m *Machine) openClarification(ctx context.Context, project *db.Project) error {
	clarify := &ClarifyState{
		Messages: []Turn{textTurn(RoleUser, openingMessage(project.Title))},
	}

	payload, err := json.Marshal(ClarifyRequest{Messages: clarify.WireTurns()})
	if err != nil {
		return fmt.Errorf("marshaling clarify request: %w", err)
	}
	result, err := m.invoke(ctx, StageClarify, project.ID, payload)
	if err != nil {
		return err
	}

	clarify.appendReply(result)
	clarify.Rounds = 1
	return m.saveClarify(ctx, project.ID, clarify)
}

// appendReply records a capability reply on the transcript, preferring the
// parsed structured form when the reply validates.
func (s *ClarifyState) appendReply(raw json.RawMessage) {
	reply, err := ParseClarifierReply(raw)
	if err != nil {
		s.Messages = append(s.Messages, Turn{Role: RoleAssistant, Content: raw})
		s.Last = nil
		return
	}
	content, _ := json.Marshal(reply)
	s.Messages = append(s.Messages, Turn{Role: RoleAssistant, Content: content})
	s.Last = reply
}

func (m *Machine) saveClarify(ctx context.Context, projectID uuid.UUID, clarify *ClarifyState) error {
	payload, err := json.Marshal(clarify)
	if err != nil {
		return fmt.Errorf("marshaling clarify state: %w", err)
	}
	if err := m.store.SaveStageRecord(ctx, projectID, string(StageClarify), payload); err != nil {
		return &PersistenceError{Op: "save clarify record", Err: err}
	}
	return nil
}

// loadClarify fetches and parses the clarify stage record, or returns
// ErrNoClarification when none exists.
func (m *Machine) loadClarify(ctx context.Context, projectID uuid.UUID) (*ClarifyState, error) {
	rec, err := m.store.GetStageRecord(ctx, projectID, string(StageClarify))
	if err != nil {
		return nil, &PersistenceError{Op: "load clarify record", Err: err}
	}
	if rec == nil {
		return nil, ErrNoClarification
	}
	return ParseClarifyState(rec.Payload)
}

// SubmitClarificationAnswers appends answers to all currently open
// questions as a single synthesized user turn, sends the merged transcript
// to the clarifier capability, and records the reply. The answer list must
// match the open questions one-to-one, in order.
func (m *Machine) SubmitClarificationAnswers(ctx context.Context, userID, projectID uuid.UUID, answers []string) (*State, error) {
	if _, err := m.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := m.acquire(projectID); err != nil {
		return nil, err
	}
	defer m.release(projectID)

	clarify, err := m.loadClarify(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if clarify.Done {
		return nil, ErrClarificationFinished
	}
	if clarify.Rounds >= m.clarifyMaxRounds {
		return nil, ErrClarifyRoundLimit
	}

	open := clarify.OpenQuestions()
	if len(answers) != len(open) || len(open) == 0 {
		return nil, &AnswerCountError{Want: len(open), Got: len(answers)}
	}

	clarify.Messages = append(clarify.Messages, textTurn(RoleUser, synthesizeAnswerTurn(open, answers)))

	payload, err := json.Marshal(ClarifyRequest{Messages: clarify.WireTurns()})
	if err != nil {
		return nil, fmt.Errorf("marshaling clarify request: %w", err)
	}
	result, err := m.invoke(ctx, StageClarify, projectID, payload)
	if err != nil {
		// The transition did not happen; the stored transcript is untouched.
		return nil, err
	}

	clarify.appendReply(result)
	clarify.Rounds++
	if err := m.saveClarify(ctx, projectID, clarify); err != nil {
		return nil, err
	}
	return m.deriveState(ctx, projectID)
}

// FinishClarification marks the sub-dialogue terminal. This is the only
// path to ready_to_advance; it is never inferred from reply content.
func (m *Machine) FinishClarification(ctx context.Context, userID, projectID uuid.UUID) (*State, error) {
	if _, err := m.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := m.acquire(projectID); err != nil {
		return nil, err
	}
	defer m.release(projectID)

	clarify, err := m.loadClarify(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !clarify.Done {
		clarify.Done = true
		if err := m.saveClarify(ctx, projectID, clarify); err != nil {
			return nil, err
		}
	}
	return m.deriveState(ctx, projectID)
}

// nextStage computes the stage a successful advance would record, given
// the derived position and the clarify record.
func (m *Machine) nextStage(position Position, outputs map[Stage]json.RawMessage) (Stage, error) {
	switch position {
	case PositionInput, PositionClassifying:
		// Clarification is optional and may be bypassed entirely.
		return StageProduct, nil
	case PositionClarifying:
		clarify, err := ParseClarifyState(outputs[StageClarify])
		if err != nil {
			return "", err
		}
		if !clarify.Done {
			return "", ErrClarificationUnfinished
		}
		return StageProduct, nil
	}

	stage := Stage(position)
	idx := StageIndex(stage)
	if idx < 0 {
		return "", fmt.Errorf("invalid position: %s", position)
	}
	if stage == StageSummary {
		return "", ErrWorkflowComplete
	}
	return Pipeline[idx+1], nil
}

// checkPredecessors verifies every mandatory stage before next has a
// record. Clarify is exempt as the only optional stage.
func checkPredecessors(next Stage, outputs map[Stage]json.RawMessage) error {
	var missing []Stage
	for _, stage := range Pipeline[:StageIndex(next)] {
		if Registry[stage].Optional {
			continue
		}
		if _, ok := outputs[stage]; !ok {
			missing = append(missing, stage)
		}
	}
	if len(missing) > 0 {
		return &PreconditionError{Stage: next, Missing: missing}
	}
	return nil
}

// Advance executes the next stage of the pipeline: it validates
// preconditions, builds the stage payload from prior outputs, invokes the
// capability, and durably records the result before reporting success.
// On any failure the record set is unchanged and the position does not
// move. Recording the terminal summary stage completes the project.
func (m *Machine) Advance(ctx context.Context, userID, projectID uuid.UUID) (*State, error) {
	project, err := m.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := m.acquire(projectID); err != nil {
		return nil, err
	}
	defer m.release(projectID)

	records, err := m.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return nil, &PersistenceError{Op: "list stage records", Err: err}
	}
	outputs := OutputsByStage(records)

	next, err := m.nextStage(PositionOf(records), outputs)
	if err != nil {
		return nil, err
	}
	if err := checkPredecessors(next, outputs); err != nil {
		return nil, err
	}

	payload, err := BuildPayload(next, BuildInput{Title: project.Title, Outputs: outputs})
	if err != nil {
		return nil, fmt.Errorf("building %s payload: %w", next, err)
	}

	result, err := m.invoke(ctx, next, projectID, payload)
	if err != nil {
		return nil, err
	}

	if err := m.store.SaveStageRecord(ctx, projectID, string(next), result); err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("save %s record", next), Err: err}
	}
	if err := m.updateFacets(ctx, projectID, next, result); err != nil {
		return nil, err
	}
	if next == StageSummary {
		if err := m.store.SetProjectStatus(ctx, projectID, db.ProjectStatusCompleted); err != nil {
			return nil, &PersistenceError{Op: "complete project", Err: err}
		}
	}

	return m.deriveState(ctx, projectID)
}

// updateFacets applies side facets of a stage output to the project row.
// The diagram URL has two producers: the diagram stage and, occasionally,
// the product stage. Both write paths are kept (see DESIGN.md).
func (m *Machine) updateFacets(ctx context.Context, projectID uuid.UUID, stage Stage, result json.RawMessage) error {
	if stage != StageProduct && stage != StageDiagram {
		return nil
	}
	url := parseDiagramURL(result)
	if url == "" {
		return nil
	}
	if err := m.store.SetProjectDiagramURL(ctx, projectID, url); err != nil {
		return &PersistenceError{Op: "update diagram url", Err: err}
	}
	return nil
}

// Regenerate re-executes the current stage's capability call with the same
// payload construction as Advance and overwrites its record. Position and
// project status never change. The clarification dialogue is regenerated
// through answer submission, not here.
func (m *Machine) Regenerate(ctx context.Context, userID, projectID uuid.UUID) (*State, error) {
	project, err := m.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := m.acquire(projectID); err != nil {
		return nil, err
	}
	defer m.release(projectID)

	records, err := m.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return nil, &PersistenceError{Op: "list stage records", Err: err}
	}
	outputs := OutputsByStage(records)

	position := PositionOf(records)
	stage := Stage(position)
	if StageIndex(stage) < StageIndex(StageProduct) {
		return nil, ErrNothingToRegenerate
	}

	payload, err := BuildPayload(stage, BuildInput{Title: project.Title, Outputs: outputs})
	if err != nil {
		return nil, fmt.Errorf("building %s payload: %w", stage, err)
	}

	result, err := m.invoke(ctx, stage, projectID, payload)
	if err != nil {
		return nil, err
	}

	if err := m.store.SaveStageRecord(ctx, projectID, string(stage), result); err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("save %s record", stage), Err: err}
	}
	if err := m.updateFacets(ctx, projectID, stage, result); err != nil {
		return nil, err
	}

	return m.deriveState(ctx, projectID)
}

// State returns the derived workflow state of a project. Read-only; does
// not take the transition slot.
func (m *Machine) State(ctx context.Context, userID, projectID uuid.UUID) (*State, error) {
	if _, err := m.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return m.deriveState(ctx, projectID)
}

// StageView returns the stored payload of one stage for display. Pure
// view-selection: no transition, no mutation.
func (m *Machine) StageView(ctx context.Context, userID, projectID uuid.UUID, stage string) (json.RawMessage, error) {
	if !ValidStage(stage) {
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}
	if _, err := m.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	rec, err := m.store.GetStageRecord(ctx, projectID, stage)
	if err != nil {
		return nil, &PersistenceError{Op: "load stage record", Err: err}
	}
	if rec == nil {
		return nil, ErrStageNotRecorded
	}
	return rec.Payload, nil
}

// Delete removes a project and cascades its stage records.
func (m *Machine) Delete(ctx context.Context, userID, projectID uuid.UUID) error {
	if _, err := m.ownedProject(ctx, userID, projectID); err != nil {
		return err
	}
	if err := m.store.DeleteProject(ctx, projectID); err != nil {
		return &PersistenceError{Op: "delete project", Err: err}
	}
	return nil
}

// RunToCompletion advances the workflow through every remaining stage,
// calling onStage after each durable record. It stops at the first
// failure. Clarification must be finished or bypassed before calling.
func (m *Machine) RunToCompletion(ctx context.Context, userID, projectID uuid.UUID, onStage func(stage Stage, state *State)) (*State, error) {
	state, err := m.State(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	for range Pipeline {
		if state.Status == db.ProjectStatusCompleted {
			break
		}
		state, err = m.Advance(ctx, userID, projectID)
		if err != nil {
			if errors.Is(err, ErrWorkflowComplete) {
				break
			}
			return state, err
		}
		if onStage != nil {
			onStage(Stage(state.Position), state)
		}
	}
	return state, nil
}
