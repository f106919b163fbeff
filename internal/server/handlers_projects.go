package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/idea-workbench/internal/db"
	"github.com/jonathan/idea-workbench/internal/server/middleware"
	"github.com/jonathan/idea-workbench/internal/workflow"
)

// submitIdeaRequest is the body of POST /projects.
type submitIdeaRequest struct {
	Title string `json:"title"`
}

// submitIdeaResponse wraps the created state with an optional warning when
// the project was created but the clarifier opening call failed.
type submitIdeaResponse struct {
	*workflow.State
	Warning string `json:"warning,omitempty"`
}

// requestIdentity pulls the authenticated user and the project ID path
// parameter out of the request. The project ID is optional for routes
// without an {id} segment.
func (s *Server) requestIdentity(w http.ResponseWriter, r *http.Request) (userID, projectID uuid.UUID, ok bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, uuid.Nil, false
	}

	raw := r.PathValue("id")
	if raw == "" {
		return userID, uuid.Nil, true
	}
	projectID, err = uuid.Parse(raw)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid project id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, projectID, true
}

// handleCreateProject submits a raw idea: it creates the project, kicks off
// classification, and opens the clarification dialogue.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var req submitIdeaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		s.errorResponse(w, http.StatusBadRequest, "title is required")
		return
	}

	state, err := s.workflow.SubmitIdea(r.Context(), userID, req.Title)
	if err != nil {
		// The project may exist even when the opening call failed; report
		// partial success rather than discarding the created project.
		var capErr *workflow.CapabilityError
		if state != nil && errors.As(err, &capErr) {
			s.jsonResponse(w, http.StatusCreated, submitIdeaResponse{
				State:   state,
				Warning: "project created but clarification failed to start: " + capErr.Error(),
			})
			return
		}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, submitIdeaResponse{State: state})
}

// handleListProjects returns the authenticated user's projects.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	projects, err := s.db.ListProjectsByUser(r.Context(), userID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []db.Project{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"projects": projects})
}

// handleGetProject returns the full derived workflow state of a project.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	state, err := s.workflow.State(r.Context(), userID, projectID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleDeleteProject deletes a project and its stage records.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	if err := s.workflow.Delete(r.Context(), userID, projectID); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}
