package bus

import (
	"context"
	"encoding/binary"

	"github.com/motioncore/stservoctl/protocol"
)

// PositionEntry is one contributor to a batched position/speed/acceleration
// sync write.
type PositionEntry struct {
	ID    byte
	Pos   uint16
	Speed uint16
	Acc   byte
}

// SpeedEntry is one contributor to a batched continuous-speed sync write.
type SpeedEntry struct {
	ID          byte
	SignedSpeed int
}

// SyncWriteResult reports which ids actually made it into the transmitted
// batch.
type SyncWriteResult struct {
	Included []byte
	Result   protocol.TransportResult
}

// Success reports whether at least one id was committed.
func (r SyncWriteResult) Success() bool {
	return len(r.Included) > 0 && r.Result == protocol.Success
}

// maxU16 is the widest value a two-byte control-table register holds. An
// entry whose goal position lies above protocol.PositionMax, or whose speed
// does not fit its register, is dropped from the batch rather than failing
// the whole transaction.
const maxU16 = 0xFFFF

// SyncWritePositions batches entries into one InstSyncWrite frame addressing
// Acceleration..GoalSpeed for every contributor. Entries that can't be
// encoded are skipped locally; the frame still transmits for the rest.
func (a *Arbiter) SyncWritePositions(ctx context.Context, entries []PositionEntry) SyncWriteResult {
	const blockWidth = 7 // acc(1) + pos(2) + time(2, zeroed) + speed(2)
	var included []byte
	body := make([]byte, 0, 2+len(entries)*(1+blockWidth))
	body = append(body, protocol.RegAcceleration.Addr, blockWidth)

	for _, e := range entries {
		if int(e.Pos) > protocol.PositionMax || uint32(e.Speed) > maxU16 {
			continue // register overflow: drop locally, keep the rest
		}
		block := make([]byte, 0, 1+blockWidth)
		block = append(block, e.ID, e.Acc)
		posBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(posBuf, e.Pos)
		block = append(block, posBuf...)
		block = append(block, 0, 0) // goal time
		speedBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(speedBuf, e.Speed)
		block = append(block, speedBuf...)
		body = append(body, block...)
		included = append(included, e.ID)
	}

	return a.transmitSyncWrite(ctx, included, body)
}

// SyncWriteSpeeds batches continuous-rotation speed commands.
func (a *Arbiter) SyncWriteSpeeds(ctx context.Context, entries []SpeedEntry) SyncWriteResult {
	const blockWidth = 2
	var included []byte
	body := make([]byte, 0, 2+len(entries)*(1+blockWidth))
	body = append(body, protocol.RegGoalSpeed.Addr, blockWidth)

	for _, e := range entries {
		magnitude := e.SignedSpeed
		if magnitude < 0 {
			magnitude = -magnitude
		}
		if uint32(magnitude) > maxU16-1024 {
			continue
		}
		speed := protocol.EncodeSignedSpeed(e.SignedSpeed)
		block := make([]byte, 0, 1+blockWidth)
		block = append(block, e.ID)
		speedBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(speedBuf, speed)
		block = append(block, speedBuf...)
		body = append(body, block...)
		included = append(included, e.ID)
	}

	return a.transmitSyncWrite(ctx, included, body)
}

func (a *Arbiter) transmitSyncWrite(ctx context.Context, included []byte, body []byte) SyncWriteResult {
	if len(included) == 0 {
		return SyncWriteResult{Result: protocol.Success}
	}
	result, _ := withRetry(groupSyncPolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, result, err := a.transactLocked(ctx, protocol.BroadcastID(), protocol.InstSyncWrite, body, false, syncOpTimeout)
		return result, err
	})
	return SyncWriteResult{Included: included, Result: result}
}
