package server

import (
	"net/http"

	"github.com/jonathan/idea-workbench/internal/workflow"
)

// handleAdvanceStream runs every remaining pipeline stage, streaming one
// SSE event per durably recorded stage. The stream ends with a complete
// event, or an error event naming the stage that failed.
func (s *Server) handleAdvanceStream(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	state, err := s.workflow.RunToCompletion(r.Context(), userID, projectID,
		func(stage workflow.Stage, st *workflow.State) {
			sse.WriteEvent("stage", map[string]any{ //nolint:errcheck
				"stage":    stage,
				"position": st.Position,
				"status":   st.Status,
			})
		})
	if err != nil {
		sse.WriteError(err.Error())
		return
	}

	sse.WriteComplete(projectID.String(), state.Status)
}
