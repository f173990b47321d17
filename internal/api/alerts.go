package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SendAlertRequest is the POST /alerts/{name} body.
type SendAlertRequest struct {
	Payload string `json:"payload"`
}

func (s *Server) handleSendAlert(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req SendAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.services.AlertSend(r.Context(), name, req.Payload); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"alert": name, "sent": true})
}
