package httpapi

import (
	"net/http"

	"github.com/motioncore/stservoctl/session"
)

func (s *Server) handleTelemetryOne(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	snap, err := s.ctrl.Telemetry(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTelemetryResponse(snap))
}

func (s *Server) handleTelemetryAll(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status()
	out := make(map[session.ServoID]telemetryResponse, len(st.Discovered))
	for id := range st.Discovered {
		snap, err := s.ctrl.Telemetry(r.Context(), id)
		if err != nil {
			continue // one servo's failure degrades, never aborts the batch
		}
		out[id] = newTelemetryResponse(snap)
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                                  `json:"success"`
		Servos  map[session.ServoID]telemetryResponse `json:"servos"`
	}{Success: true, Servos: out})
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetPosition(r.Context(), req.ServoID, req.Position, req.Speed, req.Acceleration); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetSpeed(r.Context(), req.ServoID, req.Speed); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleSetAcceleration(w http.ResponseWriter, r *http.Request) {
	var req accelerationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetAcceleration(r.Context(), req.ServoID, req.Acceleration); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleSetSpeedAcceleration(w http.ResponseWriter, r *http.Request) {
	var req speedAccelerationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetSpeed(r.Context(), req.ServoID, req.Speed); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.ctrl.SetAcceleration(r.Context(), req.ServoID, req.Acceleration); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleEnableTorque(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.EnableTorque(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleDisableTorque(w http.ResponseWriter, r *http.Request) {
	id, err := servoIDParam(r)
	if err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.DisableTorque(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleChangeID(w http.ResponseWriter, r *http.Request) {
	var req changeIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if err := s.ctrl.ChangeID(r.Context(), req.OldID, req.NewID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}
