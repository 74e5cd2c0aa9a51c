package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zenithlabs/nexus/internal/executor"
	"github.com/zenithlabs/nexus/internal/workspace"
)

// runRequest is the start-run command. Files are optional: when omitted the
// controller gathers them from the workspace based on the language.
type runRequest struct {
	Language string                `json:"language"`
	Files    []executor.SourceFile `json:"files"`
}

// runResponse acknowledges a started run. Output arrives on the event stream.
type runResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// inputRequest is the input-line command for the running session.
type inputRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controllerFor(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("load workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}

	var req runRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := ctrl.Run(req.Language, req.Files)
	if errors.Is(err, workspace.ErrBusy) {
		// The busy system event has already been published on the stream.
		s.writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	if errors.Is(err, workspace.ErrNoActiveFile) {
		s.writeError(w, http.StatusBadRequest, "nothing to run")
		return
	}
	if err != nil {
		s.logger.Error("start run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	s.writeJSON(w, http.StatusAccepted, runResponse{
		SessionID: sess.ID(),
		State:     sess.State(),
	})
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controllerFor(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("load workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}

	var req inputRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctrl.Input(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controllerFor(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("load workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}

	ctrl.Cancel()
	w.WriteHeader(http.StatusNoContent)
}
