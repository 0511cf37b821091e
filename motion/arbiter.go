package motion

import (
	"context"

	"github.com/motioncore/stservoctl/bus"
	"github.com/motioncore/stservoctl/protocol"
)

// Arbiter is the subset of *bus.Arbiter the Motion Engine calls, narrowed to
// an interface so tests can substitute a fake (the fakeSerialPort/fakeArbiter
// idiom noted in DESIGN.md, grounded in the pack's mockGPIO/mockBoard style).
type Arbiter interface {
	Ping(ctx context.Context, id byte) (uint16, protocol.TransportResult, error)
	ReadU8(ctx context.Context, id byte, reg protocol.Register) (byte, protocol.TransportResult, error)
	ReadU16(ctx context.Context, id byte, reg protocol.Register) (uint16, protocol.TransportResult, error)
	WriteU8(ctx context.Context, id byte, reg protocol.Register, v byte) (protocol.TransportResult, error)
	WriteTorque(ctx context.Context, id byte, enable bool) (protocol.TransportResult, error)
	WritePosEx(ctx context.Context, id byte, pos uint16, speed uint16, acc byte) (protocol.TransportResult, error)
	WriteSpec(ctx context.Context, id byte, signedSpeed int, acc byte) (protocol.TransportResult, error)

	// SyncWritePositions / SyncWriteSpeeds are the group sync writer the
	// Batcher coalesces concurrent workers' per-tick setpoints onto, so a
	// shared servo bus emits one frame per tick per pattern family instead
	// of one per worker.
	SyncWritePositions(ctx context.Context, entries []bus.PositionEntry) bus.SyncWriteResult
	SyncWriteSpeeds(ctx context.Context, entries []bus.SpeedEntry) bus.SyncWriteResult
}
