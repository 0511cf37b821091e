package motion

import (
	"context"
	"time"

	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

// recoveryBackoff is the inter-attempt delay shared by every ladder stage
// that retries.
const recoveryBackoff = 50 * time.Millisecond

// torqueCyclePause is the settle time between dropping and re-asserting
// torque in the recovery ladder's second stage.
const torqueCyclePause = 100 * time.Millisecond

// RecoveryStage names one rung of the ladder, for logging/diagnostics.
type RecoveryStage string

const (
	StagePing         RecoveryStage = "ping"
	StageTorqueCycle  RecoveryStage = "torque-cycle"
	StageBaudSanity   RecoveryStage = "baud-sanity"
	StageVoltageProbe RecoveryStage = "voltage-probe"
	StagePositionHold RecoveryStage = "position-hold"
)

// RunRecoveryLadder executes the five staged restoration attempts in order
// until one succeeds, returning the stage that
// succeeded (or "" if every stage failed). It is a free function (not a
// Worker method) so the Supervisor's resurrection path can run
// the same ladder without a live worker goroutine.
func RunRecoveryLadder(ctx context.Context, arb Arbiter, logger logging.Logger, id byte, expectedBaud uint) RecoveryStage {
	stages := []struct {
		name RecoveryStage
		fn   func() bool
	}{
		{StagePing, func() bool { return recoverPing(ctx, arb, id) }},
		{StageTorqueCycle, func() bool { return recoverTorqueCycle(ctx, arb, id) }},
		{StageBaudSanity, func() bool { return recoverBaudSanity(ctx, arb, id, expectedBaud) }},
		{StageVoltageProbe, func() bool { return recoverVoltageProbe(ctx, arb, id) }},
		{StagePositionHold, func() bool { return recoverPositionHold(ctx, arb, id) }},
	}

	for _, stage := range stages {
		if stage.fn() {
			logger.Infow("recovery ladder restored communication", "servo", id, "stage", stage.name)
			return stage.name
		}
	}
	logger.Warnw("recovery ladder exhausted, continuing in degraded state", "servo", id)
	return ""
}

func recoverPing(ctx context.Context, arb Arbiter, id byte) bool {
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(recoveryBackoff)
		}
		_, result, err := arb.Ping(ctx, id)
		if err == nil && result == protocol.Success {
			return true
		}
	}
	return false
}

func recoverTorqueCycle(ctx context.Context, arb Arbiter, id byte) bool {
	for cycle := 0; cycle < 3; cycle++ {
		if cycle > 0 {
			time.Sleep(recoveryBackoff)
		}
		if result, err := arb.WriteTorque(ctx, id, false); err != nil || result != protocol.Success {
			continue
		}
		time.Sleep(torqueCyclePause)
		if result, err := arb.WriteTorque(ctx, id, true); err != nil || result != protocol.Success {
			continue
		}
		if _, result, err := arb.ReadU16(ctx, id, protocol.RegPresentPosition); err == nil && result == protocol.Success {
			return true
		}
	}
	return false
}

func recoverBaudSanity(ctx context.Context, arb Arbiter, id byte, expectedBaud uint) bool {
	current, result, err := arb.ReadU8(ctx, id, protocol.RegBaudRate)
	if err != nil || result != protocol.Success {
		return false
	}
	expected, known := protocol.BaudSymbolFor(expectedBaud)
	if !known || current == expected {
		return true
	}
	_, err = arb.WriteU8(ctx, id, protocol.RegBaudRate, expected)
	return err == nil
}

func recoverVoltageProbe(ctx context.Context, arb Arbiter, id byte) bool {
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(recoveryBackoff)
		}
		_, result, err := arb.ReadU8(ctx, id, protocol.RegPresentVoltage)
		if err == nil && result == protocol.Success {
			return true
		}
	}
	return false
}

func recoverPositionHold(ctx context.Context, arb Arbiter, id byte) bool {
	pos, result, err := arb.ReadU16(ctx, id, protocol.RegPresentPosition)
	if err != nil || result != protocol.Success {
		return false
	}
	result, err = arb.WritePosEx(ctx, id, pos, 0, 0)
	return err == nil && result == protocol.Success
}

// runRecoveryLadder is the Worker's in-loop health-check failure handler: it
// runs the shared ladder and folds the outcome into the record's published
// telemetry degradation marker.
func (w *Worker) runRecoveryLadder(ctx context.Context, rec *session.PatternRecord) bool {
	stage := RunRecoveryLadder(ctx, w.arb, w.logger, byte(w.id), w.expectedBaud)
	if stage == "" {
		w.markDegraded(rec)
		return false
	}
	if stage == StagePositionHold {
		if pos, result, err := w.arb.ReadU16(ctx, byte(w.id), protocol.RegPresentPosition); err == nil && result == protocol.Success {
			rec.SetCurrentPosition(int(pos))
		}
	}
	w.markRecovered(rec)
	return true
}

// markDegraded/markRecovered update the record's published telemetry so
// status endpoints can surface RecoveryExhausted as "N/A" fields
// and a degraded communication_quality without aborting the pattern.
func (w *Worker) markDegraded(rec *session.PatternRecord) {
	t := rec.GetTelemetry()
	if t.Degraded == nil {
		t.Degraded = make(map[string]bool)
	}
	t.Degraded["communication"] = true
	rec.SetTelemetry(t)
}

func (w *Worker) markRecovered(rec *session.PatternRecord) {
	t := rec.GetTelemetry()
	if t.Degraded != nil {
		delete(t.Degraded, "communication")
	}
	rec.SetTelemetry(t)
}
