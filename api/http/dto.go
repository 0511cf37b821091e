package httpapi

import (
	"encoding/json"
	"time"

	"github.com/motioncore/stservoctl/controller"
	"github.com/motioncore/stservoctl/session"
)

// envelope is every response's common shape: {"success": bool, ...}, per
// spec.md §6.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

func okEnvelope() envelope { return envelope{Success: true} }

func errEnvelope(err error) envelope {
	return envelope{Success: false, Error: err.Error(), Kind: string(controller.ErrorKind(err))}
}

// measurement renders a controller.Measurement as either a JSON number or
// the literal string "N/A" when its recovery ladder was exhausted, matching
// spec.md §7's RecoveryExhausted surfacing.
type measurement controller.Measurement

func (m measurement) MarshalJSON() ([]byte, error) {
	if !m.OK {
		return json.Marshal("N/A")
	}
	return json.Marshal(m.Value)
}

type connectRequest struct {
	Port     string `json:"port"`
	BaudRate uint   `json:"baudrate"`
}

type discoverRequest struct {
	StartID byte `json:"start_id"`
	EndID   byte `json:"end_id"`
}

type discoveredServoDTO struct {
	ID          session.ServoID `json:"id"`
	ModelNumber uint16          `json:"model_number"`
	FirstSeenAt time.Time       `json:"first_seen_at"`
}

type statusResponse struct {
	envelope
	Connected  bool                              `json:"connected"`
	Port       string                            `json:"port,omitempty"`
	BaudRate   uint                              `json:"baudrate,omitempty"`
	Discovered map[session.ServoID]discoveredServoDTO `json:"discovered"`
}

func newDiscoveredDTO(found map[session.ServoID]session.DiscoveredServo) map[session.ServoID]discoveredServoDTO {
	out := make(map[session.ServoID]discoveredServoDTO, len(found))
	for id, d := range found {
		out[id] = discoveredServoDTO{ID: d.ID, ModelNumber: d.ModelNumber, FirstSeenAt: d.FirstSeenAt}
	}
	return out
}

type discoverResponse struct {
	envelope
	Discovered map[session.ServoID]discoveredServoDTO `json:"discovered"`
}

type portsResponse struct {
	Ports []string `json:"ports"`
}

type telemetryResponse struct {
	envelope
	ServoID       session.ServoID `json:"servo_id"`
	Position      measurement     `json:"position"`
	AngleDegrees  measurement     `json:"angle_degrees"`
	Speed         measurement     `json:"speed"`
	Moving        measurement     `json:"moving"`
	GoalPosition  measurement     `json:"goal_position"`
	GoalSpeed     measurement     `json:"goal_speed"`
	Acceleration  measurement     `json:"acceleration"`
	Mode          measurement     `json:"mode"`
	VoltageV      measurement     `json:"voltage_v"`
	TemperatureC  measurement     `json:"temperature_c"`
	CurrentMA     measurement     `json:"current_ma"`
	Load          measurement     `json:"load"`
	TorqueEnabled measurement     `json:"torque_enabled"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func newTelemetryResponse(snap controller.TelemetrySnapshot) telemetryResponse {
	return telemetryResponse{
		envelope:      okEnvelope(),
		ServoID:       snap.ID,
		Position:      measurement(snap.Position),
		AngleDegrees:  measurement(snap.AngleDegrees),
		Speed:         measurement(snap.Speed),
		Moving:        measurement(snap.Moving),
		GoalPosition:  measurement(snap.GoalPosition),
		GoalSpeed:     measurement(snap.GoalSpeed),
		Acceleration:  measurement(snap.Acceleration),
		Mode:          measurement(snap.Mode),
		VoltageV:      measurement(snap.VoltageV),
		TemperatureC:  measurement(snap.TemperatureC),
		CurrentMA:     measurement(snap.CurrentMA),
		Load:          measurement(snap.Load),
		TorqueEnabled: measurement(snap.TorqueEnabled),
		UpdatedAt:     snap.UpdatedAt,
	}
}

type positionRequest struct {
	ServoID      session.ServoID `json:"servo_id"`
	Position     int             `json:"position"`
	Speed        int             `json:"speed"`
	Acceleration int             `json:"acceleration"`
}

type speedRequest struct {
	ServoID session.ServoID `json:"servo_id"`
	Speed   int             `json:"speed"`
}

type accelerationRequest struct {
	ServoID      session.ServoID `json:"servo_id"`
	Acceleration int             `json:"acceleration"`
}

type speedAccelerationRequest struct {
	ServoID      session.ServoID `json:"servo_id"`
	Speed        int             `json:"speed"`
	Acceleration int             `json:"acceleration"`
}

type changeIDRequest struct {
	OldID byte `json:"old_id"`
	NewID byte `json:"new_id"`
}

// angleLimitsDTO is the wire shape of session.AngleLimits.
type angleLimitsDTO struct {
	Enabled bool `json:"enabled"`
	Min     int  `json:"min"`
	Max     int  `json:"max"`
}

func (d angleLimitsDTO) toSession() session.AngleLimits {
	return session.AngleLimits{Enabled: d.Enabled, Min: d.Min, Max: d.Max}
}

type sweepDTO struct {
	StartPosition int `json:"start_position"`
	EndPosition   int `json:"end_position"`
}

type waveDTO struct {
	CenterPosition int     `json:"center_position"`
	Amplitude      int     `json:"amplitude"`
	FrequencyHz    float64 `json:"frequency_hz"`
}

type rotationDTO struct {
	Direction int `json:"direction"`
}

// movementConfigDTO is one entry of /continuous-movement/start's
// movement_configs array.
type movementConfigDTO struct {
	ServoID      session.ServoID `json:"servo_id"`
	Type         string          `json:"type"`
	Speed        int             `json:"speed"`
	Acceleration int             `json:"acceleration"`
	CyclesTarget int             `json:"cycles_target"`

	Sweep    sweepDTO       `json:"sweep"`
	Wave     waveDTO        `json:"wave"`
	Rotation rotationDTO    `json:"rotation"`
	Angle    angleLimitsDTO `json:"angle_limits"`
}

func (m movementConfigDTO) kind() (session.PatternKind, bool) {
	switch m.Type {
	case "sweep", "":
		return session.Sweep, true
	case "wave":
		return session.Wave, true
	case "rotation":
		return session.Rotation, true
	default:
		return 0, false
	}
}

func (m movementConfigDTO) toMotionConfig() controller.MotionConfig {
	kind, _ := m.kind()
	direction := 1
	if m.Sweep.EndPosition < m.Sweep.StartPosition {
		direction = -1
	}
	return controller.MotionConfig{
		ID:           m.ServoID,
		Kind:         kind,
		Speed:        m.Speed,
		Acceleration: m.Acceleration,
		CyclesTarget: m.CyclesTarget,
		Sweep: session.SweepParams{
			StartPosition: m.Sweep.StartPosition,
			EndPosition:   m.Sweep.EndPosition,
			Direction:     direction,
		},
		Wave: session.WaveParams{
			CenterPosition: m.Wave.CenterPosition,
			Amplitude:      m.Wave.Amplitude,
			FrequencyHz:    m.Wave.FrequencyHz,
			T0:             time.Now(),
		},
		Rotation: session.RotationParams{
			Direction: m.Rotation.Direction,
		},
		AngleLimits: m.Angle.toSession(),
	}
}

type startMotionRequest struct {
	MovementConfigs []movementConfigDTO `json:"movement_configs"`
}

type servoIDsRequest struct {
	ServoIDs []session.ServoID `json:"servo_ids"`
}

type itemResultDTO struct {
	ServoID session.ServoID `json:"servo_id"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}

func newItemResults(results []controller.ItemResult) []itemResultDTO {
	out := make([]itemResultDTO, 0, len(results))
	for _, r := range results {
		dto := itemResultDTO{ServoID: r.ID, Success: r.Err == nil}
		if r.Err != nil {
			dto.Error = r.Err.Error()
		}
		out = append(out, dto)
	}
	return out
}

type batchResponse struct {
	envelope
	Results []itemResultDTO `json:"results"`
}

type offsetRequest struct {
	Offset uint16 `json:"offset"`
}

type angleLimitsRequest struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type deadZoneRequest struct {
	CW  byte `json:"cw"`
	CCW byte `json:"ccw"`
}

type servoConfigResponse struct {
	envelope
	ServoID     session.ServoID `json:"servo_id"`
	Offset      int             `json:"offset"`
	AngleMin    int             `json:"angle_min"`
	AngleMax    int             `json:"angle_max"`
	CWDeadband  int             `json:"cw_deadband"`
	CCWDeadband int             `json:"ccw_deadband"`
}

func newServoConfigResponse(id session.ServoID, cfg controller.ServoConfig) servoConfigResponse {
	return servoConfigResponse{
		envelope:    okEnvelope(),
		ServoID:     id,
		Offset:      cfg.Offset,
		AngleMin:    cfg.AngleMin,
		AngleMax:    cfg.AngleMax,
		CWDeadband:  cfg.CWDeadband,
		CCWDeadband: cfg.CCWDeadband,
	}
}

type patternStatusDTO struct {
	Kind            string          `json:"kind"`
	Running         bool            `json:"running"`
	Paused          bool            `json:"paused"`
	CycleCount      int             `json:"cycle_count"`
	CyclesTarget    int             `json:"cycles_target"`
	CurrentPosition int             `json:"current_position"`
	Telemetry       telemetryDTO    `json:"telemetry"`
}

type telemetryDTO struct {
	Position      int       `json:"position"`
	Speed         int       `json:"speed"`
	Moving        bool      `json:"moving"`
	GoalPosition  int       `json:"goal_position"`
	GoalSpeed     int       `json:"goal_speed"`
	Acceleration  int       `json:"acceleration"`
	Mode          int       `json:"mode"`
	VoltageV      float64   `json:"voltage_v"`
	TemperatureC  int       `json:"temperature_c"`
	CurrentMA     int       `json:"current_ma"`
	Load          int       `json:"load"`
	TorqueEnabled bool      `json:"torque_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
	Degraded      []string  `json:"degraded,omitempty"`
}

func newPatternStatusDTO(st controller.PatternStatus) patternStatusDTO {
	var degraded []string
	for ch, bad := range st.Telemetry.Degraded {
		if bad {
			degraded = append(degraded, ch)
		}
	}
	return patternStatusDTO{
		Kind:            st.Kind.String(),
		Running:         st.Running,
		Paused:          st.Paused,
		CycleCount:      st.CycleCount,
		CyclesTarget:    st.CyclesTarget,
		CurrentPosition: st.CurrentPosition,
		Telemetry: telemetryDTO{
			Position:      st.Telemetry.Position,
			Speed:         st.Telemetry.Speed,
			Moving:        st.Telemetry.Moving,
			GoalPosition:  st.Telemetry.GoalPosition,
			GoalSpeed:     st.Telemetry.GoalSpeed,
			Acceleration:  st.Telemetry.Acceleration,
			Mode:          st.Telemetry.Mode,
			VoltageV:      st.Telemetry.VoltageV,
			TemperatureC:  st.Telemetry.TemperatureC,
			CurrentMA:     st.Telemetry.CurrentMA,
			Load:          st.Telemetry.Load,
			TorqueEnabled: st.Telemetry.TorqueEnabled,
			UpdatedAt:     st.Telemetry.UpdatedAt,
			Degraded:      degraded,
		},
	}
}

type allStatusResponse struct {
	envelope
	Servos map[session.ServoID]patternStatusDTO `json:"servos"`
}

type supervisorStatsDTO struct {
	SweepID          string            `json:"sweep_id,omitempty"`
	SweepAt          time.Time         `json:"sweep_at,omitempty"`
	ServosChecked    int               `json:"servos_checked"`
	HealthCheckFails int               `json:"health_check_fails"`
	Resurrected      []session.ServoID `json:"resurrected,omitempty"`
	GaveUp           []session.ServoID `json:"gave_up,omitempty"`
}

type diagnosticsResponse struct {
	envelope
	Connected             bool               `json:"connected"`
	Port                  string             `json:"port,omitempty"`
	ActiveServos          int                `json:"active_servos"`
	SupervisorOn          bool               `json:"supervisor_running"`
	CommunicationQuality  float64            `json:"communication_quality"`
	LastSweep             supervisorStatsDTO `json:"last_sweep"`
}

func newDiagnosticsResponse(d controller.Diagnostics) diagnosticsResponse {
	return diagnosticsResponse{
		envelope:             okEnvelope(),
		Connected:            d.Connection.Connected,
		Port:                 d.Connection.Port,
		ActiveServos:         d.ActiveServos,
		SupervisorOn:         d.SupervisorRun,
		CommunicationQuality: d.CommunicationQuality,
		LastSweep: supervisorStatsDTO{
			SweepID:          d.SupervisorLast.SweepID,
			SweepAt:          d.SupervisorLast.SweepAt,
			ServosChecked:    d.SupervisorLast.ServosChecked,
			HealthCheckFails: d.SupervisorLast.HealthCheckFails,
			Resurrected:      d.SupervisorLast.Resurrected,
			GaveUp:           d.SupervisorLast.GaveUp,
		},
	}
}

type healthCheckResponse struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ActiveServos int    `json:"active_servos"`
}
