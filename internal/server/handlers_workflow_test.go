package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-workbench/internal/workflow"
)

func TestHandleAdvance(t *testing.T) {
	projectID := uuid.New()
	state := testState(projectID)
	state.Position = workflow.Position(workflow.StageProduct)
	state.SubState = workflow.SubStateNone
	s := newHandlerTestServer(&stubWorkflow{state: state}, nil)

	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/advance", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleAdvance(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp workflow.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, workflow.Position("product"), resp.Position)
}

func TestHandleAdvance_ClarificationUnfinished(t *testing.T) {
	s := newHandlerTestServer(&stubWorkflow{err: workflow.ErrClarificationUnfinished}, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/advance", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleAdvance(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleAdvance_Busy(t *testing.T) {
	s := newHandlerTestServer(&stubWorkflow{err: workflow.ErrProjectBusy}, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/advance", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleAdvance(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleAdvance_Timeout(t *testing.T) {
	wf := &stubWorkflow{err: &workflow.CapabilityError{
		Stage:   workflow.StageRisk,
		Timeout: true,
		Err:     assert.AnError,
	}}
	s := newHandlerTestServer(wf, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/advance", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleAdvance(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestHandleRegenerate(t *testing.T) {
	projectID := uuid.New()
	state := testState(projectID)
	state.Position = workflow.Position(workflow.StageCustomer)
	state.SubState = workflow.SubStateNone
	s := newHandlerTestServer(&stubWorkflow{state: state}, nil)

	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/regenerate", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleRegenerate(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRegenerate_NothingRecorded(t *testing.T) {
	s := newHandlerTestServer(&stubWorkflow{err: workflow.ErrNothingToRegenerate}, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/regenerate", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleRegenerate(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleClarifyAnswers(t *testing.T) {
	projectID := uuid.New()
	wf := &stubWorkflow{state: testState(projectID)}
	s := newHandlerTestServer(wf, nil)

	body := map[string]any{"answers": []string{"Dog owners", "Seattle"}}
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/clarify", body,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleClarifyAnswers(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Dog owners", "Seattle"}, wf.lastAnswers)
}

func TestHandleClarifyAnswers_Empty(t *testing.T) {
	s := newHandlerTestServer(&stubWorkflow{}, nil)

	projectID := uuid.New()
	body := map[string]any{"answers": []string{}}
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/clarify", body,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleClarifyAnswers(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleClarifyAnswers_CountMismatch(t *testing.T) {
	wf := &stubWorkflow{err: &workflow.AnswerCountError{Want: 2, Got: 1}}
	s := newHandlerTestServer(wf, nil)

	projectID := uuid.New()
	body := map[string]any{"answers": []string{"only one"}}
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/clarify", body,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleClarifyAnswers(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "expected 2 answers")
}

func TestHandleClarifyFinish(t *testing.T) {
	projectID := uuid.New()
	state := testState(projectID)
	state.SubState = workflow.SubStateReadyToAdvance
	state.OpenQuestions = nil
	s := newHandlerTestServer(&stubWorkflow{state: state}, nil)

	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/clarify/finish", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleClarifyFinish(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp workflow.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, workflow.SubStateReadyToAdvance, resp.SubState)
}

func TestHandleGetStage(t *testing.T) {
	payload := json.RawMessage(`{"product_data":{"problem":"busy owners"}}`)
	s := newHandlerTestServer(&stubWorkflow{payload: payload}, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodGet, "/projects/"+projectID.String()+"/stages/product", nil,
		uuid.New(), map[string]string{"id": projectID.String(), "stage": "product"})
	w := httptest.NewRecorder()

	s.handleGetStage(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, string(payload), w.Body.String())
}

func TestHandleGetStage_UnknownStage(t *testing.T) {
	s := newHandlerTestServer(&stubWorkflow{}, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodGet, "/projects/"+projectID.String()+"/stages/bogus", nil,
		uuid.New(), map[string]string{"id": projectID.String(), "stage": "bogus"})
	w := httptest.NewRecorder()

	s.handleGetStage(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetStage_NotRecorded(t *testing.T) {
	s := newHandlerTestServer(&stubWorkflow{err: workflow.ErrStageNotRecorded}, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodGet, "/projects/"+projectID.String()+"/stages/risk", nil,
		uuid.New(), map[string]string{"id": projectID.String(), "stage": "risk"})
	w := httptest.NewRecorder()

	s.handleGetStage(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAdvanceStream(t *testing.T) {
	projectID := uuid.New()
	state := testState(projectID)
	state.Status = "completed"
	state.SubState = workflow.SubStateNone
	wf := &stubWorkflow{
		state:     state,
		stagesRun: []workflow.Stage{workflow.StageProduct, workflow.StageCustomer},
	}
	s := newHandlerTestServer(wf, nil)

	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/advance/stream", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleAdvanceStream(w, req)

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: stage")
	assert.Contains(t, body, `"stage":"product"`)
	assert.Contains(t, body, `"stage":"customer"`)
	assert.Contains(t, body, "event: complete")
	assert.Contains(t, body, `"status":"completed"`)
}

func TestHandleAdvanceStream_Error(t *testing.T) {
	wf := &stubWorkflow{err: workflow.ErrClarificationUnfinished}
	s := newHandlerTestServer(wf, nil)

	projectID := uuid.New()
	req := authedRequest(t, http.MethodPost, "/projects/"+projectID.String()+"/advance/stream", nil,
		uuid.New(), map[string]string{"id": projectID.String()})
	w := httptest.NewRecorder()

	s.handleAdvanceStream(w, req)

	assert.Contains(t, w.Body.String(), "event: error")
	assert.Contains(t, w.Body.String(), "clarification not finished")
}
