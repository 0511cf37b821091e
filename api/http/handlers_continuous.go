package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/motioncore/stservoctl/controller"
	"github.com/motioncore/stservoctl/session"
)

var errNoMovementConfigs = errors.New("movement_configs: no entries provided")

func unknownPatternTypeErr(t string) error {
	return fmt.Errorf("movement_configs: unknown pattern type %q", t)
}

func (s *Server) handleMovementStart(w http.ResponseWriter, r *http.Request) {
	var req startMotionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	if len(req.MovementConfigs) == 0 {
		writeBadRequest(w, s.logger, errNoMovementConfigs)
		return
	}

	configs := make([]controller.MotionConfig, 0, len(req.MovementConfigs))
	for _, m := range req.MovementConfigs {
		if _, ok := m.kind(); !ok {
			writeBadRequest(w, s.logger, unknownPatternTypeErr(m.Type))
			return
		}
		configs = append(configs, m.toMotionConfig())
	}

	if err := s.ctrl.StartMotion(r.Context(), configs); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleMovementPause(w http.ResponseWriter, r *http.Request) {
	var req servoIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	results := s.ctrl.Pause(r.Context(), req.ServoIDs)
	writeJSON(w, http.StatusOK, batchResponse{envelope: okEnvelope(), Results: newItemResults(results)})
}

func (s *Server) handleMovementResume(w http.ResponseWriter, r *http.Request) {
	var req servoIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	results := s.ctrl.Resume(r.Context(), req.ServoIDs)
	writeJSON(w, http.StatusOK, batchResponse{envelope: okEnvelope(), Results: newItemResults(results)})
}

func (s *Server) handleMovementStop(w http.ResponseWriter, r *http.Request) {
	var req servoIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, s.logger, err)
		return
	}
	results := s.ctrl.Stop(r.Context(), req.ServoIDs)
	writeJSON(w, http.StatusOK, batchResponse{envelope: okEnvelope(), Results: newItemResults(results)})
}

func (s *Server) handleMovementForceStopAll(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ForceStopAll(r.Context()); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okEnvelope())
}

func (s *Server) handleMovementAllStatus(w http.ResponseWriter, r *http.Request) {
	all := s.ctrl.AllPatternStatus()
	out := make(map[session.ServoID]patternStatusDTO, len(all))
	for id, st := range all {
		out[id] = newPatternStatusDTO(st)
	}
	writeJSON(w, http.StatusOK, allStatusResponse{envelope: okEnvelope(), Servos: out})
}
