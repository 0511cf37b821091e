package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/motion"
	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
	"github.com/motioncore/stservoctl/supervisor"
)

const (
	startReplaceJoinBudget = 1 * time.Second
	stopJoinBudget         = 2 * time.Second
	disconnectJoinBudget   = 1 * time.Second

	discoverInterPing   = 10 * time.Millisecond
	discoverPostSuccess = 50 * time.Millisecond

	flagObservationPause = 100 * time.Millisecond
	eepromGuardPause     = 100 * time.Millisecond

	changeIDVerifyPause = 200 * time.Millisecond

	holdRotationAccel = 50
)

// Controller is the process-wide façade: the single entry point wiring
// session state, the motion engine and the Supervisor into the operations
// an external caller uses.
type Controller struct {
	state  *session.State
	logger logging.Logger
	open   openFunc
	sup    *supervisor.Supervisor

	mu      sync.RWMutex
	arb     Arbiter
	baud    uint
	batcher *motion.Batcher
}

// New constructs a Controller against state. The Supervisor is wired
// immediately but only starts ticking once Connect succeeds.
func New(state *session.State, logger logging.Logger) *Controller {
	return newWithOpener(state, logger, openBus)
}

func newWithOpener(state *session.State, logger logging.Logger, open openFunc) *Controller {
	c := &Controller{
		state:  state,
		logger: logger.Named("controller"),
		open:   open,
	}
	c.sup = supervisor.New(state, c.currentArbiter, c.logger, c.spawnWorker, c.currentBaud)
	return c
}

func (c *Controller) currentArbiter() motion.Arbiter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.arb
}

func (c *Controller) currentBaud() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baud
}

func (c *Controller) currentBatcher() *motion.Batcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.batcher
}

func (c *Controller) requireArbiter() (Arbiter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.arb == nil {
		return nil, errNotConnected()
	}
	return c.arb, nil
}

func (c *Controller) spawnWorker(ctx context.Context, id session.ServoID) {
	arb, err := c.requireArbiter()
	if err != nil {
		return
	}
	w := motion.NewWorker(id, c.state, arb, c.currentBatcher(), c.logger, c.currentBaud())
	c.state.SetWorker(id, w)
	w.Start(ctx)
}

// Connect tears down any prior connection, then opens portName at baud.
func (c *Controller) Connect(ctx context.Context, portName string, baud uint) error {
	if err := c.Disconnect(ctx); err != nil {
		return err
	}
	arb, err := c.open(portName, baud, c.logger)
	if err != nil {
		return newKindError(KindPortOpenFailed, err)
	}

	c.mu.Lock()
	c.arb = arb
	c.baud = baud
	c.batcher = motion.NewBatcher(arb)
	c.mu.Unlock()

	c.state.SetConnection(session.ConnectionState{Open: true, Port: portName, Baud: baud})
	c.sup.Start(ctx)
	return nil
}

// Disconnect stops every worker, releases the port, and resets connection
// state. Idempotent: calling it with no open connection is a no-op.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	arb := c.arb
	c.arb = nil
	c.batcher = nil
	c.mu.Unlock()
	if arb == nil {
		return nil
	}

	c.sup.Stop()

	var ids []session.ServoID
	for id := range c.state.AllRecords() {
		ids = append(ids, id)
	}
	c.stopAll(ctx, ids, arb, disconnectJoinBudget)

	closeErr := arb.Close()
	c.state.ClearDiscovered()
	c.state.SetConnection(session.ConnectionState{})
	if closeErr != nil {
		return newKindError(KindInternal, closeErr)
	}
	return nil
}

// Discover pings every id in [start, end], replacing the discovered map with
// whatever responded.
func (c *Controller) Discover(ctx context.Context, start, end byte) (map[session.ServoID]session.DiscoveredServo, error) {
	arb, err := c.requireArbiter()
	if err != nil {
		return nil, err
	}
	if start > end {
		return nil, errInvalidArgument("discover: start %d after end %d", start, end)
	}

	found := make(map[session.ServoID]session.DiscoveredServo)
	for i := int(start); i <= int(end); i++ {
		if i > int(start) {
			ctxSleep(ctx, discoverInterPing)
		}
		id := byte(i)
		model, result, pingErr := arb.Ping(ctx, id)
		if pingErr != nil || result != protocol.Success {
			continue
		}
		found[session.ServoID(id)] = session.DiscoveredServo{
			ID:          session.ServoID(id),
			ModelNumber: model,
			FirstSeenAt: time.Now(),
		}
		ctxSleep(ctx, discoverPostSuccess)
	}

	c.state.ReplaceDiscovered(found)
	return c.state.Discovered(), nil
}

// StartMotion installs and starts a worker for each config, stopping any
// prior worker on the same id first. The first config that fails aborts the
// remaining batch.
func (c *Controller) StartMotion(ctx context.Context, configs []MotionConfig) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		if !session.ServoID(cfg.ID).Valid() {
			return errInvalidArgument("start_motion: invalid servo id %d", cfg.ID)
		}
		if cfg.AngleLimits.Enabled {
			if err := c.writeAngleLimits(ctx, arb, byte(cfg.ID), cfg.AngleLimits.Min, cfg.AngleLimits.Max); err != nil {
				return err
			}
		}

		if w, ok := c.state.Worker(cfg.ID); ok {
			c.state.SetRunning(cfg.ID, false)
			w.RequestStop()
			w.Joined(startReplaceJoinBudget)
		}

		rec := &session.PatternRecord{
			Kind:         cfg.Kind,
			Speed:        cfg.Speed,
			Acceleration: cfg.Acceleration,
			CyclesTarget: cfg.CyclesTarget,
			Sweep:        cfg.Sweep,
			Wave:         cfg.Wave,
			Rotation:     cfg.Rotation,
			AngleLimits:  cfg.AngleLimits,
		}
		c.state.CreateRecord(cfg.ID, rec)
		c.state.SetRunning(cfg.ID, true)
		c.spawnWorker(ctx, cfg.ID)
	}

	c.sup.Start(ctx)
	return nil
}

// Pause asserts the stop/pause flag triad for each id, waits for the worker
// to observe it, then issues a hold command and re-asserts torque.
func (c *Controller) Pause(ctx context.Context, ids []session.ServoID) []ItemResult {
	arb, err := c.requireArbiter()
	if err != nil {
		return allFailed(ids, err)
	}

	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		rec, ok := c.state.Record(id)
		if !ok {
			results = append(results, ItemResult{ID: id, Err: errInvalidArgument("pause: no active pattern for id %d", id)})
			continue
		}

		c.state.BeginPause(id)
		ctxSleep(ctx, flagObservationPause)

		holdErr := c.holdInPlace(ctx, arb, byte(id), rec)
		if _, err := arb.WriteTorque(ctx, byte(id), true); err != nil && holdErr == nil {
			holdErr = err
		}
		c.state.ClearEmergencyStop(id)

		results = append(results, ItemResult{ID: id, Err: holdErr})
	}
	return results
}

// Resume clears the pause/immediate-stop flags and re-asserts torque.
func (c *Controller) Resume(ctx context.Context, ids []session.ServoID) []ItemResult {
	arb, err := c.requireArbiter()
	if err != nil {
		return allFailed(ids, err)
	}

	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		if _, ok := c.state.Record(id); !ok {
			results = append(results, ItemResult{ID: id, Err: errInvalidArgument("resume: no active pattern for id %d", id)})
			continue
		}
		c.state.Resume(id)
		_, err := arb.WriteTorque(ctx, byte(id), true)
		results = append(results, ItemResult{ID: id, Err: err})
	}
	return results
}

// Stop halts each id's worker, pins its current position (or zeroes its
// rotation speed), re-asserts torque, and deletes its record.
func (c *Controller) Stop(ctx context.Context, ids []session.ServoID) []ItemResult {
	arb, err := c.requireArbiter()
	if err != nil {
		return allFailed(ids, err)
	}
	return c.stopAll(ctx, ids, arb, stopJoinBudget)
}

func (c *Controller) stopAll(ctx context.Context, ids []session.ServoID, arb Arbiter, joinBudget time.Duration) []ItemResult {
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		c.state.SetRunning(id, false)
		if w, ok := c.state.Worker(id); ok {
			w.RequestStop()
			w.Joined(joinBudget)
		}

		var stopErr error
		if rec, ok := c.state.Record(id); ok {
			stopErr = c.holdInPlace(ctx, arb, byte(id), rec)
			if rec.Kind == session.Rotation {
				if _, err := arb.WriteU8(ctx, byte(id), protocol.RegMode, protocol.ModeJoint); err != nil && stopErr == nil {
					stopErr = err
				}
			}
			if _, err := arb.WriteTorque(ctx, byte(id), true); err != nil && stopErr == nil {
				stopErr = err
			}
		}
		c.state.DeleteRecord(id)
		results = append(results, ItemResult{ID: id, Err: stopErr})
	}
	return results
}

// holdInPlace issues the hold command for rec's kind: a zero-velocity spec
// for Rotation, or a pin-in-place write_pos_ex for a positional pattern.
func (c *Controller) holdInPlace(ctx context.Context, arb Arbiter, id byte, rec *session.PatternRecord) error {
	if rec.Kind == session.Rotation {
		_, err := arb.WriteSpec(ctx, id, 0, holdRotationAccel)
		return err
	}
	pos, result, err := arb.ReadU16(ctx, id, protocol.RegPresentPosition)
	if err != nil || result != protocol.Success {
		pos = uint16(rec.CurrentPosition())
	}
	_, err = arb.WritePosEx(ctx, id, pos, 0, 0)
	return err
}

// ForceStopAll stops every active pattern and fully clears session state.
func (c *Controller) ForceStopAll(ctx context.Context) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	var ids []session.ServoID
	for id := range c.state.AllRecords() {
		ids = append(ids, id)
	}
	results := c.stopAll(ctx, ids, arb, stopJoinBudget)
	c.state.ClearDiscovered()

	var combined error
	for _, r := range results {
		combined = multierr.Append(combined, r.Err)
	}
	return combined
}

func allFailed(ids []session.ServoID, err error) []ItemResult {
	results := make([]ItemResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, ItemResult{ID: id, Err: err})
	}
	return results
}

func ctxSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
