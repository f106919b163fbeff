package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/idea-workbench/internal/workflow"
)

// clarifyAnswersRequest is the body of POST /projects/{id}/clarify. Answers
// must match the currently open questions one-to-one, in order.
type clarifyAnswersRequest struct {
	Answers []string `json:"answers"`
}

// handleAdvance executes the next pipeline stage and returns the new state.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	state, err := s.workflow.Advance(r.Context(), userID, projectID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleRegenerate re-runs the current stage in place.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	state, err := s.workflow.Regenerate(r.Context(), userID, projectID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleClarifyAnswers submits answers to the open clarification questions.
func (s *Server) handleClarifyAnswers(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var req clarifyAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Answers) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "answers are required")
		return
	}

	state, err := s.workflow.SubmitClarificationAnswers(r.Context(), userID, projectID, req.Answers)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleClarifyFinish explicitly ends the clarification dialogue.
func (s *Server) handleClarifyFinish(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	state, err := s.workflow.FinishClarification(r.Context(), userID, projectID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleGetStage returns the stored payload of one stage.
func (s *Server) handleGetStage(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	stage := r.PathValue("stage")
	if !workflow.ValidStage(stage) {
		s.errorResponse(w, http.StatusBadRequest, "unknown stage: "+stage)
		return
	}

	payload, err := s.workflow.StageView(r.Context(), userID, projectID, stage)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck
}
