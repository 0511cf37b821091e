// Package motion implements the per-servo motion workers: cooperative
// setpoint generation, angle clamping, staged recovery, and race-free
// pause/stop observation over session state.
package motion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

// healthCheckEvery is the successful-step cadence for the in-band health
// check.
const healthCheckEvery = 20

// stopFlagPoll is the sleep duration while a worker waits out an asserted
// stop flag or a pause.
const stopFlagPoll = 100 * time.Millisecond

// emitAttempts/emitBackoff bound the worker-level emission retry, distinct
// from the Arbiter's own internal retry policy.
const (
	emitAttempts = 3
	emitBackoff  = 20 * time.Millisecond
)

// stepInterval returns the worker's per-iteration sleep.
func stepInterval(kind session.PatternKind) time.Duration {
	if kind == session.Rotation {
		return 50 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// Worker drives one servo's PatternRecord to completion (or indefinitely,
// for an infinite cycles_target / Rotation). It implements
// session.WorkerHandle so the façade and Supervisor can observe liveness
// without importing this package.
type Worker struct {
	id      session.ServoID
	state   *session.State
	arb     Arbiter
	batcher *Batcher
	logger  logging.Logger

	expectedBaud uint

	alive  atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewWorker constructs a Worker for id. expectedBaud is used by the baud
// sanity recovery stage; pass the connection's configured baud rate.
// batcher is shared across every worker spawned against the same
// connection, so concurrently-ticking workers land in shared group sync
// writes instead of each opening its own bus transaction.
func NewWorker(id session.ServoID, st *session.State, arb Arbiter, batcher *Batcher, logger logging.Logger, expectedBaud uint) *Worker {
	return &Worker{
		id:           id,
		state:        st,
		arb:          arb,
		batcher:      batcher,
		logger:       logger.Named("motion").Named(fmt.Sprintf("servo-%d", id)),
		expectedBaud: expectedBaud,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Alive implements session.WorkerHandle.
func (w *Worker) Alive() bool { return w.alive.Load() }

// RequestStop implements session.WorkerHandle: unblocks any sleep so the
// worker re-reads Running on its next loop check.
func (w *Worker) RequestStop() {
	w.once.Do(func() { close(w.stopCh) })
}

// Joined implements session.WorkerHandle.
func (w *Worker) Joined(timeout time.Duration) bool {
	select {
	case <-w.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// sleep blocks for d unless ctx is cancelled or RequestStop fires, in which
// case it returns early.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

// Start launches the worker loop in its own goroutine and returns
// immediately. id must already have a record in state.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	w.alive.Store(true)
	defer func() {
		w.alive.Store(false)
		close(w.doneCh)
	}()

	rec, ok := w.state.Record(w.id)
	if !ok {
		return
	}
	w.seed(ctx, rec)

	successSinceHealthCheck := 0
	for w.state.IsRunning(w.id) {
		stopAsserted, paused := w.state.CheckStopFlags(w.id)
		if stopAsserted {
			rec.Beat(time.Now())
			w.sleep(ctx, stopFlagPoll)
			continue
		}
		if paused {
			rec.Beat(time.Now())
			w.sleep(ctx, stopFlagPoll)
			continue
		}

		next, emit, isRotation := w.computeNext(rec)

		// Recheck stop flags; if set, break without emitting.
		if stopAsserted, _ := w.state.CheckStopFlags(w.id); stopAsserted {
			break
		}

		if emit {
			var ok bool
			if isRotation {
				ok = w.emitRotation(ctx, rec)
			} else {
				ok = w.emitPosition(ctx, rec, next)
			}
			if ok {
				if !isRotation {
					rec.SetCurrentPosition(next)
				}
				successSinceHealthCheck++
			}
		}

		if successSinceHealthCheck >= healthCheckEvery {
			successSinceHealthCheck = 0
			if !w.healthCheck(ctx, rec) {
				w.runRecoveryLadder(ctx, rec)
			}
			// Worker never terminates on communication failure alone; the
			// success counter restarts from zero whether or not the health
			// check or the ladder succeeded.
		}

		if rec.CyclesDone() {
			// A finite pattern terminates once its target is reached; the
			// façade's stop path still owns bringing the servo to a stable
			// hold.
			w.state.SetRunning(w.id, false)
			break
		}

		rec.Beat(time.Now())
		w.sleep(ctx, stepInterval(rec.Kind))
	}
}

// seed reads live position via the Arbiter; on failure it uses the
// mechanical midpoint. It also defaults any
// kind-specific field a caller left unset.
func (w *Worker) seed(ctx context.Context, rec *session.PatternRecord) {
	pos, result, err := w.arb.ReadU16(ctx, byte(w.id), protocol.RegPresentPosition)
	if err != nil || result != protocol.Success {
		pos = protocol.MechanicalMidpoint
	}
	rec.SetCurrentPosition(int(pos))

	if rec.Kind == session.Sweep && rec.Sweep.Direction == 0 {
		rec.Sweep.Direction = 1
	}
	if rec.Kind == session.Rotation {
		if rec.Rotation.Direction == 0 {
			rec.Rotation.Direction = 1
		}
		// Wheel mode and acceleration are set once up front: the batched
		// speed sync write only carries the signed speed field, matching
		// the control-table layout the group continuous-speed writer uses.
		_, _ = w.arb.WriteU8(ctx, byte(w.id), protocol.RegMode, protocol.ModeWheel)
		_, _ = w.arb.WriteU8(ctx, byte(w.id), protocol.RegAcceleration, byte(rec.Acceleration))
	}
	if rec.Kind == session.Wave {
		if rec.Wave.FrequencyHz <= 0 {
			rec.Wave.FrequencyHz = 1
		}
		if rec.Wave.T0.IsZero() {
			rec.Wave.T0 = time.Now()
		}
	}
}

// computeNext runs the pattern's setpoint rule and angle clamp, returning (position, emit, isRotation).
func (w *Worker) computeNext(rec *session.PatternRecord) (int, bool, bool) {
	switch rec.Kind {
	case session.Sweep:
		raw, emit := nextSweep(rec)
		if !emit {
			return 0, false, false
		}
		return applyAngleClamp(rec, raw), true, false
	case session.Wave:
		raw := nextWave(rec, time.Now())
		return applyAngleClamp(rec, raw), true, false
	case session.Rotation:
		return 0, true, true
	default:
		return 0, false, false
	}
}

func (w *Worker) emitPosition(ctx context.Context, rec *session.PatternRecord, pos int) bool {
	for attempt := 0; attempt < emitAttempts; attempt++ {
		if attempt > 0 {
			w.sleep(ctx, emitBackoff)
		}
		if w.batcher.SubmitPosition(ctx, byte(w.id), uint16(pos), uint16(rec.Speed), byte(rec.Acceleration)) {
			return true
		}
	}
	w.logger.Debugw("position emit failed after retries", "servo", w.id, "pos", pos)
	return false
}

func (w *Worker) emitRotation(ctx context.Context, rec *session.PatternRecord) bool {
	signedSpeed := rotationSignedSpeed(rec)
	for attempt := 0; attempt < emitAttempts; attempt++ {
		if attempt > 0 {
			w.sleep(ctx, emitBackoff)
		}
		if w.batcher.SubmitRotation(ctx, byte(w.id), signedSpeed) {
			return true
		}
	}
	w.logger.Debugw("rotation emit failed after retries", "servo", w.id, "signedSpeed", signedSpeed)
	return false
}

// healthCheck is a single position read used to confirm the servo is still
// answering.
func (w *Worker) healthCheck(ctx context.Context, rec *session.PatternRecord) bool {
	_, result, err := w.arb.ReadU16(ctx, byte(w.id), protocol.RegPresentPosition)
	return err == nil && result == protocol.Success
}
