package controller

import (
	"time"

	"github.com/motioncore/stservoctl/session"
)

// MotionConfig is one servo's configuration for start_motion: the pattern
// kind plus whichever kind-specific fields apply.
type MotionConfig struct {
	ID           session.ServoID
	Kind         session.PatternKind
	Speed        int
	Acceleration int
	CyclesTarget int // negative means run forever

	Sweep    session.SweepParams
	Wave     session.WaveParams
	Rotation session.RotationParams

	AngleLimits session.AngleLimits
}

// ItemResult is one id's outcome from a batch operation (pause/resume/stop),
// letting a caller see which ids in a request succeeded and which failed.
type ItemResult struct {
	ID  session.ServoID
	Err error
}

// Measurement is a telemetry channel's value, or the absence of one when its
// recovery ladder was exhausted; the union a caller surfaces as either a
// number or the literal "N/A".
type Measurement struct {
	Value float64
	OK    bool
}

// TelemetrySnapshot is telemetry(id)'s result: every channel independently
// degrades to !OK rather than failing the whole read.
type TelemetrySnapshot struct {
	ID            session.ServoID
	Position      Measurement
	AngleDegrees  Measurement
	Speed         Measurement
	Moving        Measurement
	GoalPosition  Measurement
	GoalSpeed     Measurement
	Acceleration  Measurement
	Mode          Measurement
	VoltageV      Measurement
	TemperatureC  Measurement
	CurrentMA     Measurement
	Load          Measurement
	TorqueEnabled Measurement
	UpdatedAt     time.Time
}

// ServoConfig is get_servo_config(id)'s result.
type ServoConfig struct {
	Offset       int
	AngleMin     int
	AngleMax     int
	CWDeadband   int
	CCWDeadband  int
}
