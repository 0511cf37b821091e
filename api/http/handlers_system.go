package httpapi

import "net/http"

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newDiagnosticsResponse(s.ctrl.Diagnostics()))
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	d := s.ctrl.Diagnostics()
	status := "ok"
	if !d.Connection.Connected {
		status = "disconnected"
	} else if d.CommunicationQuality < 1 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthCheckResponse{
		Status:       status,
		Connected:    d.Connection.Connected,
		ActiveServos: d.ActiveServos,
	})
}
