package controller

import (
	"context"
	"time"

	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

const (
	telemetryAttempts = 3

	angleCenterPos = 2048
	angleDegPerLSB = 0.088
	voltageLSBVolt = 0.1
)

// readU16Degraded attempts up to telemetryAttempts reads, returning a
// Measurement whose OK is false only once every attempt has failed; a single
// channel's exhaustion never aborts the others.
func readU16Degraded(ctx context.Context, arb Arbiter, id byte, reg protocol.Register) Measurement {
	for attempt := 0; attempt < telemetryAttempts; attempt++ {
		v, result, err := arb.ReadU16(ctx, id, reg)
		if err == nil && result == protocol.Success {
			return Measurement{Value: float64(v), OK: true}
		}
	}
	return Measurement{}
}

func readU8Degraded(ctx context.Context, arb Arbiter, id byte, reg protocol.Register) Measurement {
	for attempt := 0; attempt < telemetryAttempts; attempt++ {
		v, result, err := arb.ReadU8(ctx, id, reg)
		if err == nil && result == protocol.Success {
			return Measurement{Value: float64(v), OK: true}
		}
	}
	return Measurement{}
}

// Telemetry reads every channel independently, degrading a channel to
// !OK ("N/A" at the HTTP layer) on exhaustion rather than failing the whole
// snapshot.
func (c *Controller) Telemetry(ctx context.Context, id session.ServoID) (TelemetrySnapshot, error) {
	arb, err := c.requireArbiter()
	if err != nil {
		return TelemetrySnapshot{}, err
	}

	position := readU16Degraded(ctx, arb, byte(id), protocol.RegPresentPosition)
	speed := readU16Degraded(ctx, arb, byte(id), protocol.RegPresentSpeed)
	moving := readU8Degraded(ctx, arb, byte(id), protocol.RegMoving)
	goalPosition := readU16Degraded(ctx, arb, byte(id), protocol.RegGoalPosition)
	goalSpeed := readU16Degraded(ctx, arb, byte(id), protocol.RegGoalSpeed)
	acceleration := readU8Degraded(ctx, arb, byte(id), protocol.RegAcceleration)
	mode := readU8Degraded(ctx, arb, byte(id), protocol.RegMode)
	voltage := readU8Degraded(ctx, arb, byte(id), protocol.RegPresentVoltage)
	temperature := readU8Degraded(ctx, arb, byte(id), protocol.RegPresentTemp)
	current := readU16Degraded(ctx, arb, byte(id), protocol.RegPresentCurrent)
	load := readU16Degraded(ctx, arb, byte(id), protocol.RegPresentLoad)
	torque := readU8Degraded(ctx, arb, byte(id), protocol.RegTorqueEnable)

	snapshot := TelemetrySnapshot{
		ID:            id,
		Position:      position,
		Speed:         speed,
		Moving:        Measurement{Value: moving.Value, OK: moving.OK},
		GoalPosition:  goalPosition,
		GoalSpeed:     goalSpeed,
		Acceleration:  acceleration,
		Mode:          mode,
		VoltageV:      Measurement{Value: voltage.Value * voltageLSBVolt, OK: voltage.OK},
		TemperatureC:  temperature,
		CurrentMA:     current,
		Load:          load,
		TorqueEnabled: Measurement{Value: torque.Value, OK: torque.OK},
		UpdatedAt:     time.Now(),
	}
	if position.OK {
		snapshot.AngleDegrees = Measurement{Value: (position.Value - angleCenterPos) * angleDegPerLSB, OK: true}
	}

	c.publishTelemetry(id, snapshot)
	return snapshot, nil
}

// publishTelemetry folds the snapshot into the record's published telemetry
// (if the id still has an active pattern), so status endpoints see the same
// values this call just read.
func (c *Controller) publishTelemetry(id session.ServoID, snap TelemetrySnapshot) {
	rec, ok := c.state.Record(id)
	if !ok {
		return
	}
	degraded := map[string]bool{}
	prior := rec.GetTelemetry()
	for k, v := range prior.Degraded {
		degraded[k] = v
	}
	markDegradedChannel(degraded, "position", snap.Position.OK)
	markDegradedChannel(degraded, "speed", snap.Speed.OK)
	markDegradedChannel(degraded, "voltage", snap.VoltageV.OK)
	markDegradedChannel(degraded, "temperature", snap.TemperatureC.OK)
	markDegradedChannel(degraded, "current", snap.CurrentMA.OK)
	markDegradedChannel(degraded, "load", snap.Load.OK)

	rec.SetTelemetry(session.Telemetry{
		Position:      int(snap.Position.Value),
		Speed:         int(snap.Speed.Value),
		Moving:        snap.Moving.Value != 0,
		GoalPosition:  int(snap.GoalPosition.Value),
		GoalSpeed:     int(snap.GoalSpeed.Value),
		Acceleration:  int(snap.Acceleration.Value),
		Mode:          int(snap.Mode.Value),
		VoltageV:      snap.VoltageV.Value,
		TemperatureC:  int(snap.TemperatureC.Value),
		CurrentMA:     int(snap.CurrentMA.Value),
		Load:          int(snap.Load.Value),
		TorqueEnabled: snap.TorqueEnabled.Value != 0,
		UpdatedAt:     snap.UpdatedAt,
		Degraded:      degraded,
	})
}

func markDegradedChannel(degraded map[string]bool, channel string, ok bool) {
	if ok {
		delete(degraded, channel)
		return
	}
	degraded[channel] = true
}
