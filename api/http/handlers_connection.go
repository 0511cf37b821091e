package httpapi

import (
	"net/http"

	"github.com/motioncore/stservoctl/ports"
)

const defaultBaudRate = 1_000_000

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	baud := req.BaudRate
	if baud == 0 {
		baud = defaultBaudRate
	}
	if err := s.ctrl.Connect(r.Context(), req.Port, baud); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Disconnect(r.Context()); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	found, err := s.ctrl.Discover(r.Context(), req.StartID, req.EndID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, discoverResponse{envelope: okEnvelope(), Discovered: newDiscoveredDTO(found)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		envelope:   okEnvelope(),
		Connected:  st.Connected,
		Port:       st.Port,
		BaudRate:   st.Baud,
		Discovered: newDiscoveredDTO(st.Discovered),
	})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, portsResponse{Ports: ports.List()})
}
