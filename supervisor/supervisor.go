// Package supervisor implements the periodic sweep that
// resurrects dead workers, runs health checks, and aggregates real-time
// status for the controller façade's diagnostics endpoints.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/motion"
	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

// SweepInterval is the Supervisor's cadence.
const SweepInterval = 5 * time.Second

// StalenessFactor multiplies the 100ms step period to get the heartbeat
// staleness threshold. Workers step every 100ms (50ms for Rotation), so the
// threshold covers both pattern kinds with margin.
const StalenessFactor = 3

// defaultStaleness is the heartbeat staleness threshold applied to every
// record; a missing handle, a dead handle or a heartbeat older than this
// all trigger resurrection.
const defaultStaleness = StalenessFactor * 100 * time.Millisecond

// WorkerFactory constructs and starts a fresh worker for id, wiring it
// into state as the new WorkerHandle. Supplied by the controller façade so
// this package never constructs an Arbiter itself.
type WorkerFactory func(ctx context.Context, id session.ServoID)

// Stats is a point-in-time snapshot of the Supervisor's most recent sweep,
// surfaced by the controller façade's diagnostics/real-time-status
// endpoints.
type Stats struct {
	SweepID          string
	SweepAt          time.Time
	ServosChecked    int
	HealthCheckFails int
	Resurrected      []session.ServoID
	GaveUp           []session.ServoID
}

// Supervisor runs the periodic reconciliation sweep.
type Supervisor struct {
	state     *session.State
	arb       func() motion.Arbiter
	logger    logging.Logger
	newWorker WorkerFactory
	baud      func() uint

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Supervisor. arb and baud are called fresh at each sweep
// (not captured once) so a disconnect/reconnect is reflected immediately
// without reconstructing the Supervisor.
func New(state *session.State, arb func() motion.Arbiter, logger logging.Logger, newWorker WorkerFactory, baud func() uint) *Supervisor {
	return &Supervisor{
		state:     state,
		arb:       arb,
		logger:    logger.Named("supervisor"),
		newWorker: newWorker,
		baud:      baud,
	}
}

// Start begins the periodic sweep if not already running.
func (sv *Supervisor) Start(ctx context.Context) {
	if sv.running.Swap(true) {
		return
	}
	sv.stopCh = make(chan struct{})
	sv.doneCh = make(chan struct{})
	go sv.loop(ctx)
}

// Stop halts the sweep and waits for the current one, if any, to finish.
func (sv *Supervisor) Stop() {
	if !sv.running.Swap(false) {
		return
	}
	close(sv.stopCh)
	<-sv.doneCh
}

// Running reports whether the sweep loop is active.
func (sv *Supervisor) Running() bool { return sv.running.Load() }

// Stats returns the most recent sweep's results.
func (sv *Supervisor) Stats() Stats {
	sv.statsMu.Lock()
	defer sv.statsMu.Unlock()
	return sv.stats
}

func (sv *Supervisor) loop(ctx context.Context) {
	defer close(sv.doneCh)
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sv.stopCh:
			return
		case <-ticker.C:
			sv.sweep(ctx)
		}
	}
}

// sweep reconciles every running record against its worker handle,
// resurrecting stale ones via the recovery ladder and recording
// diagnostics. Stamped with a sweep id (google/uuid) so log lines from one
// pass correlate.
func (sv *Supervisor) sweep(ctx context.Context) {
	arb := sv.arb()
	if arb == nil {
		return // disconnected: nothing to reconcile against
	}

	sweepID := uuid.NewString()
	now := time.Now()
	stale := sv.state.StaleWorkers(now, defaultStaleness)

	stats := Stats{SweepID: sweepID, SweepAt: now}
	for id := range sv.state.AllRecords() {
		if !sv.state.IsRunning(id) {
			continue
		}
		stats.ServosChecked++
		if _, result, err := arb.Ping(ctx, byte(id)); err != nil || result != protocol.Success {
			stats.HealthCheckFails++
		}
	}

	for _, id := range stale {
		sv.logger.Warnw("resurrecting stale worker", "sweep", sweepID, "servo", id)
		stage := motion.RunRecoveryLadder(ctx, arb, sv.logger, byte(id), sv.baud())
		if stage == "" {
			sv.logger.Errorw("recovery exhausted, stopping pattern", "sweep", sweepID, "servo", id)
			sv.state.SetRunning(id, false)
			stats.GaveUp = append(stats.GaveUp, id)
			continue
		}
		sv.newWorker(ctx, id)
		stats.Resurrected = append(stats.Resurrected, id)
	}

	sv.statsMu.Lock()
	sv.stats = stats
	sv.statsMu.Unlock()
}
