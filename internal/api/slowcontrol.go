package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// VariableResponse is a single variable read or write result.
type VariableResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SetVariableRequest is the PUT /slowcontrol/{name} body.
type SetVariableRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleListVariables(w http.ResponseWriter, _ *http.Request) {
	vars := s.services.SlowControl().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"variables": vars,
		"count":     len(vars),
	})
}

// handleGetVariable reports a variable through its read hook, as a remote
// peer would see it.
func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	value, err := s.services.SlowControl().Read(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VariableResponse{Name: name, Value: value})
}

// handleSetVariable applies a change the same way a remote set request does.
func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req SetVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	stored, err := s.services.SlowControl().Change(name, req.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VariableResponse{Name: name, Value: stored})
}
