package motion

import (
	"context"
	"sync"
	"time"

	"github.com/motioncore/stservoctl/protocol"

	"github.com/motioncore/stservoctl/bus"
)

// batchWindow is how long the Batcher holds a frame open after its first
// submission before flushing, so concurrently-ticking workers of the same
// pattern family land in one shared group sync write rather than each
// opening its own. Grounded in the original backend's
// _execute_group_movement_step, which computes every active servo's next
// setpoint before issuing a single syncWrite/syncWriteContinuousSpeed per
// tick rather than one bus transaction per servo.
const batchWindow = 15 * time.Millisecond

// Batcher is the Motion Engine's channel onto the Bus Arbiter's group sync
// writer. Independent per-servo Workers keep their own pause/stop/recovery
// loop but submit their computed setpoint here instead of issuing their own
// WritePosEx/WriteSpec; submissions arriving within the same batchWindow
// share one transmitted frame. A submission that the underlying
// SyncWritePositions/SyncWriteSpeeds drops (register overflow, or simply
// never reached because the rest of the batch failed) is reported back to
// its caller as failed while the rest of the batch still commits --
// partial-membership semantics flow straight from bus.SyncWriteResult.
type Batcher struct {
	arb Arbiter

	posMu    sync.Mutex
	posBatch map[byte]bus.PositionEntry
	posWait  map[byte][]chan bool
	posTimer *time.Timer

	spdMu    sync.Mutex
	spdBatch map[byte]bus.SpeedEntry
	spdWait  map[byte][]chan bool
	spdTimer *time.Timer
}

// NewBatcher constructs a Batcher over arb. One Batcher is shared by every
// worker spawned against the same connection.
func NewBatcher(arb Arbiter) *Batcher {
	return &Batcher{
		arb:      arb,
		posBatch: make(map[byte]bus.PositionEntry),
		posWait:  make(map[byte][]chan bool),
		spdBatch: make(map[byte]bus.SpeedEntry),
		spdWait:  make(map[byte][]chan bool),
	}
}

// SubmitPosition enqueues id's position/speed/acceleration setpoint into the
// open batch window (opening one if none is pending) and blocks until that
// window flushes, reporting whether id's entry was committed.
func (b *Batcher) SubmitPosition(ctx context.Context, id byte, pos, speed uint16, acc byte) bool {
	wait := make(chan bool, 1)

	b.posMu.Lock()
	b.posBatch[id] = bus.PositionEntry{ID: id, Pos: pos, Speed: speed, Acc: acc}
	b.posWait[id] = append(b.posWait[id], wait)
	if b.posTimer == nil {
		b.posTimer = time.AfterFunc(batchWindow, b.flushPositions)
	}
	b.posMu.Unlock()

	select {
	case ok := <-wait:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (b *Batcher) flushPositions() {
	b.posMu.Lock()
	entries := make([]bus.PositionEntry, 0, len(b.posBatch))
	for _, e := range b.posBatch {
		entries = append(entries, e)
	}
	waiters := b.posWait
	b.posBatch = make(map[byte]bus.PositionEntry)
	b.posWait = make(map[byte][]chan bool)
	b.posTimer = nil
	b.posMu.Unlock()

	result := b.arb.SyncWritePositions(context.Background(), entries)
	deliver(waiters, result)
}

// SubmitRotation is SubmitPosition's continuous-speed counterpart; the
// underlying group writer only carries the signed speed field (matching the
// original's syncWriteContinuousSpeed), so acceleration and wheel mode are
// the caller's responsibility to set once up front.
func (b *Batcher) SubmitRotation(ctx context.Context, id byte, signedSpeed int) bool {
	wait := make(chan bool, 1)

	b.spdMu.Lock()
	b.spdBatch[id] = bus.SpeedEntry{ID: id, SignedSpeed: signedSpeed}
	b.spdWait[id] = append(b.spdWait[id], wait)
	if b.spdTimer == nil {
		b.spdTimer = time.AfterFunc(batchWindow, b.flushSpeeds)
	}
	b.spdMu.Unlock()

	select {
	case ok := <-wait:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (b *Batcher) flushSpeeds() {
	b.spdMu.Lock()
	entries := make([]bus.SpeedEntry, 0, len(b.spdBatch))
	for _, e := range b.spdBatch {
		entries = append(entries, e)
	}
	waiters := b.spdWait
	b.spdBatch = make(map[byte]bus.SpeedEntry)
	b.spdWait = make(map[byte][]chan bool)
	b.spdTimer = nil
	b.spdMu.Unlock()

	result := b.arb.SyncWriteSpeeds(context.Background(), entries)
	deliver(waiters, result)
}

// deliver fans result back to every waiter keyed by id, honoring the group
// writer's partial-membership contract: an id absent from Included (or a
// transport-level failure) resolves false without disturbing the other
// waiters.
func deliver(waiters map[byte][]chan bool, result bus.SyncWriteResult) {
	included := make(map[byte]bool, len(result.Included))
	for _, id := range result.Included {
		included[id] = true
	}
	transportOK := result.Result == protocol.Success
	for id, chans := range waiters {
		ok := transportOK && included[id]
		for _, c := range chans {
			c <- ok
		}
	}
}
