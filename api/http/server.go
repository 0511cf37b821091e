package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/motioncore/stservoctl/controller"
	"github.com/motioncore/stservoctl/logging"
)

// Server wires the controller façade into a chi.Router matching spec.md §6's
// endpoint table one-to-one.
type Server struct {
	ctrl   *controller.Controller
	logger logging.Logger
}

// NewServer builds a Server over ctrl.
func NewServer(ctrl *controller.Controller, logger logging.Logger) *Server {
	return &Server{ctrl: ctrl, logger: logger.Named("api")}
}

// Router returns the fully-wired http.Handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Post("/connect", s.handleConnect)
	r.Post("/disconnect", s.handleDisconnect)
	r.Post("/discover", s.handleDiscover)
	r.Get("/status", s.handleStatus)
	r.Get("/ports", s.handlePorts)

	r.Get("/telemetry/all", s.handleTelemetryAll)
	r.Get("/telemetry/{id}", s.handleTelemetryOne)

	r.Post("/position", s.handleSetPosition)
	r.Post("/speed", s.handleSetSpeed)
	r.Post("/acceleration", s.handleSetAcceleration)
	r.Post("/speed-acceleration", s.handleSetSpeedAcceleration)

	r.Post("/enable-torque/{id}", s.handleEnableTorque)
	r.Post("/disable-torque/{id}", s.handleDisableTorque)

	r.Post("/change_id", s.handleChangeID)

	r.Post("/continuous-movement/start", s.handleMovementStart)
	r.Post("/continuous-movement/pause", s.handleMovementPause)
	r.Post("/continuous-movement/resume", s.handleMovementResume)
	r.Post("/continuous-movement/stop", s.handleMovementStop)
	r.Post("/continuous-movement/force-stop-all", s.handleMovementForceStopAll)
	r.Get("/continuous-movement/all-status", s.handleMovementAllStatus)
	r.Get("/continuous-movement/real-time-status", s.handleMovementAllStatus)

	r.Post("/servo/offset/{id}", s.handleSetOffset)
	r.Post("/servo/angle-limits/{id}", s.handleSetAngleLimits)
	r.Post("/servo/dead-zone/{id}", s.handleSetDeadZone)
	r.Get("/servo/config/{id}", s.handleGetServoConfig)

	r.Get("/system/diagnostics", s.handleDiagnostics)
	r.Get("/system/health-check", s.handleHealthCheck)

	return r
}
