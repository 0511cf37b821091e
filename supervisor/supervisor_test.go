package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/motioncore/stservoctl/bus"
	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/motion"
	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

type fakeArbiter struct {
	pingOK bool
}

func (f *fakeArbiter) Ping(ctx context.Context, id byte) (uint16, protocol.TransportResult, error) {
	if f.pingOK {
		return 0x10, protocol.Success, nil
	}
	return 0, protocol.RxTimeout, errDisconnected
}

func (f *fakeArbiter) ReadU8(ctx context.Context, id byte, reg protocol.Register) (byte, protocol.TransportResult, error) {
	if f.pingOK {
		return 0, protocol.Success, nil
	}
	return 0, protocol.RxTimeout, errDisconnected
}

func (f *fakeArbiter) ReadU16(ctx context.Context, id byte, reg protocol.Register) (uint16, protocol.TransportResult, error) {
	if f.pingOK {
		return 2048, protocol.Success, nil
	}
	return 0, protocol.RxTimeout, errDisconnected
}

func (f *fakeArbiter) WriteU8(ctx context.Context, id byte, reg protocol.Register, v byte) (protocol.TransportResult, error) {
	return protocol.Success, nil
}

func (f *fakeArbiter) WriteTorque(ctx context.Context, id byte, enable bool) (protocol.TransportResult, error) {
	if f.pingOK {
		return protocol.Success, nil
	}
	return protocol.TxFail, errDisconnected
}

func (f *fakeArbiter) WritePosEx(ctx context.Context, id byte, pos uint16, speed uint16, acc byte) (protocol.TransportResult, error) {
	if f.pingOK {
		return protocol.Success, nil
	}
	return protocol.TxFail, errDisconnected
}

func (f *fakeArbiter) WriteSpec(ctx context.Context, id byte, signedSpeed int, acc byte) (protocol.TransportResult, error) {
	return protocol.Success, nil
}

func (f *fakeArbiter) SyncWritePositions(ctx context.Context, entries []bus.PositionEntry) bus.SyncWriteResult {
	if !f.pingOK {
		return bus.SyncWriteResult{Result: protocol.TxFail}
	}
	included := make([]byte, 0, len(entries))
	for _, e := range entries {
		included = append(included, e.ID)
	}
	return bus.SyncWriteResult{Included: included, Result: protocol.Success}
}

func (f *fakeArbiter) SyncWriteSpeeds(ctx context.Context, entries []bus.SpeedEntry) bus.SyncWriteResult {
	if !f.pingOK {
		return bus.SyncWriteResult{Result: protocol.TxFail}
	}
	included := make([]byte, 0, len(entries))
	for _, e := range entries {
		included = append(included, e.ID)
	}
	return bus.SyncWriteResult{Included: included, Result: protocol.Success}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errDisconnected = fakeErr("disconnected")

func asGetter(a *fakeArbiter) func() motion.Arbiter {
	return func() motion.Arbiter { return a }
}

func TestSupervisorResurrectsStaleWorker(t *testing.T) {
	st := session.New()
	st.CreateRecord(1, &session.PatternRecord{Kind: session.Sweep})
	st.SetRunning(1, true)
	// No WorkerHandle installed at all: StaleWorkers treats this as dead.

	arb := &fakeArbiter{pingOK: true}
	var resurrected []session.ServoID
	sv := New(st, asGetter(arb), logging.NewTestLogger(), func(ctx context.Context, id session.ServoID) {
		resurrected = append(resurrected, id)
	}, func() uint { return 1_000_000 })

	sv.sweep(context.Background())

	require.Equal(t, []session.ServoID{1}, resurrected)
	require.True(t, st.IsRunning(1))
	stats := sv.Stats()
	require.Equal(t, []session.ServoID{1}, stats.Resurrected)
}

func TestSupervisorGivesUpWhenLadderExhausted(t *testing.T) {
	st := session.New()
	st.CreateRecord(1, &session.PatternRecord{Kind: session.Sweep})
	st.SetRunning(1, true)

	arb := &fakeArbiter{pingOK: false}
	sv := New(st, asGetter(arb), logging.NewTestLogger(), func(ctx context.Context, id session.ServoID) {
		t.Fatal("should not resurrect when recovery is exhausted")
	}, func() uint { return 1_000_000 })

	sv.sweep(context.Background())

	require.False(t, st.IsRunning(1))
	stats := sv.Stats()
	require.Equal(t, []session.ServoID{1}, stats.GaveUp)
}

func TestSupervisorStartStopIdempotent(t *testing.T) {
	st := session.New()
	arb := &fakeArbiter{pingOK: true}
	sv := New(st, asGetter(arb), logging.NewTestLogger(), func(ctx context.Context, id session.ServoID) {}, func() uint { return 1_000_000 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sv.Start(ctx)
	sv.Start(ctx) // second Start is a no-op
	require.True(t, sv.Running())

	sv.Stop()
	require.False(t, sv.Running())
	sv.Stop() // second Stop is a no-op

	_ = time.Millisecond
}
