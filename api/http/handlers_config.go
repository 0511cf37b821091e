package httpapi

import "net/http"

func (s *Server) handleSetOffset(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	var req offsetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetOffset(r.Context(), id, req.Offset); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleSetAngleLimits(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	var req angleLimitsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetAngleLimits(r.Context(), id, req.Min, req.Max); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleSetDeadZone(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	var req deadZoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetDeadZone(r.Context(), id, req.CW, req.CCW); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleGetServoConfig(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	cfg, err := s.ctrl.GetServoConfig(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newServoConfigResponse(id, cfg))
}
