package server

import (
	"net/http"

	"github.com/glassdesk/relay/registry"
)

func (s *Server) handleClientRegister(w http.ResponseWriter, r *http.Request) {
	var reg registry.Registration
	if !decodeBody(w, r, &reg) {
		return
	}
	client, err := s.clients.Register(r.Context(), reg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

type heartbeatRequest struct {
	ClientID string `json:"client_id"`
}

func (s *Server) handleClientHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	if err := s.clients.Heartbeat(r.Context(), req.ClientID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClientGet(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.Lookup(r.Context(), r.PathValue("clientId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}
