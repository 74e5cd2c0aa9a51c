package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zenithlabs/nexus/internal/model"
	"github.com/zenithlabs/nexus/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

// saveFilesRequest is the JSON body for PUT /v1/workspace/files: the full
// replacement file set. Files without an ID are provisional; the response
// carries the durable IDs the store assigned.
type saveFilesRequest struct {
	Files []model.File `json:"files"`
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controllerFor(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("load workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}
	s.writeJSON(w, http.StatusOK, ctrl.Workspace())
}

func (s *Server) handleSaveFiles(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controllerFor(r.Context(), userID(r))
	if err != nil {
		s.logger.Error("load workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}

	var req saveFilesRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Files) == 0 {
		s.writeError(w, http.StatusBadRequest, "files is required")
		return
	}

	ws, err := ctrl.ReplaceFiles(r.Context(), req.Files)
	if errors.Is(err, store.ErrDuplicateFileName) {
		s.writeError(w, http.StatusConflict, "duplicate file name in workspace")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	if err != nil {
		s.logger.Error("save workspace files", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save workspace")
		return
	}

	s.writeJSON(w, http.StatusOK, ws)
}
