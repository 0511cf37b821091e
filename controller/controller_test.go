package controller

import (
	"context"
	"sync"
	"testing"

	"go.viam.com/test"

	"github.com/motioncore/stservoctl/bus"
	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

type fakeArbiter struct {
	mu sync.Mutex

	present     map[byte]uint16
	present8    map[byte]byte
	respondsTo  map[byte]bool
	modelNumber uint16
	closed      bool
	torque      map[byte]bool
	mode        map[byte]byte
}

func newFakeArbiter() *fakeArbiter {
	return &fakeArbiter{
		present:    map[byte]uint16{},
		present8:   map[byte]byte{},
		respondsTo: map[byte]bool{1: true, 2: true},
		torque:     map[byte]bool{},
		mode:       map[byte]byte{},
	}
}

func (f *fakeArbiter) Ping(ctx context.Context, id byte) (uint16, protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.respondsTo[id] {
		return 0, protocol.RxTimeout, fakeErr("no response")
	}
	return f.modelNumber, protocol.Success, nil
}

func (f *fakeArbiter) ReadU8(ctx context.Context, id byte, reg protocol.Register) (byte, protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.respondsTo[id] {
		return 0, protocol.RxTimeout, fakeErr("no response")
	}
	return f.present8[reg.Addr], protocol.Success, nil
}

func (f *fakeArbiter) ReadU16(ctx context.Context, id byte, reg protocol.Register) (uint16, protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.respondsTo[id] {
		return 0, protocol.RxTimeout, fakeErr("no response")
	}
	return f.present[reg.Addr], protocol.Success, nil
}

func (f *fakeArbiter) WriteU8(ctx context.Context, id byte, reg protocol.Register, v byte) (protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present8[reg.Addr] = v
	if reg.Addr == protocol.RegMode.Addr {
		f.mode[id] = v
	}
	if reg.Addr == protocol.RegID.Addr && f.respondsTo[id] {
		// the servo now answers at its new address only
		f.respondsTo[id] = false
		f.respondsTo[v] = true
	}
	return protocol.Success, nil
}

func (f *fakeArbiter) WriteU16(ctx context.Context, id byte, reg protocol.Register, v uint16) (protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[reg.Addr] = v
	return protocol.Success, nil
}

func (f *fakeArbiter) WriteTorque(ctx context.Context, id byte, enable bool) (protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torque[id] = enable
	return protocol.Success, nil
}

func (f *fakeArbiter) WritePosEx(ctx context.Context, id byte, pos uint16, speed uint16, acc byte) (protocol.TransportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[protocol.RegPresentPosition.Addr] = pos
	f.present[protocol.RegGoalSpeed.Addr] = speed
	return protocol.Success, nil
}

func (f *fakeArbiter) WriteSpec(ctx context.Context, id byte, signedSpeed int, acc byte) (protocol.TransportResult, error) {
	return protocol.Success, nil
}

func (f *fakeArbiter) UnlockEEPROM(ctx context.Context, id byte) (protocol.TransportResult, error) {
	return protocol.Success, nil
}

func (f *fakeArbiter) LockEEPROM(ctx context.Context, id byte) (protocol.TransportResult, error) {
	return protocol.Success, nil
}

func (f *fakeArbiter) SyncWritePositions(ctx context.Context, entries []bus.PositionEntry) bus.SyncWriteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	included := make([]byte, 0, len(entries))
	for _, e := range entries {
		f.present[protocol.RegPresentPosition.Addr] = e.Pos
		f.present[protocol.RegGoalSpeed.Addr] = e.Speed
		included = append(included, e.ID)
	}
	return bus.SyncWriteResult{Included: included, Result: protocol.Success}
}

func (f *fakeArbiter) SyncWriteSpeeds(ctx context.Context, entries []bus.SpeedEntry) bus.SyncWriteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	included := make([]byte, 0, len(entries))
	for _, e := range entries {
		included = append(included, e.ID)
	}
	return bus.SyncWriteResult{Included: included, Result: protocol.Success}
}

func (f *fakeArbiter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func newTestController(t *testing.T) (*Controller, *fakeArbiter) {
	arb := newFakeArbiter()
	c := newWithOpener(session.New(), logging.NewTestLogger(), func(port string, baud uint, logger logging.Logger) (Arbiter, error) {
		return arb, nil
	})
	err := c.Connect(context.Background(), "/dev/fake", 1_000_000)
	test.That(t, err, test.ShouldBeNil)
	return c, arb
}

func TestConnectDisconnectIdempotent(t *testing.T) {
	c, arb := newTestController(t)
	err := c.Disconnect(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arb.closed, test.ShouldBeTrue)

	// second disconnect is a no-op
	err = c.Disconnect(context.Background())
	test.That(t, err, test.ShouldBeNil)
}

func TestOperationsFailWhenNotConnected(t *testing.T) {
	c := newWithOpener(session.New(), logging.NewTestLogger(), func(port string, baud uint, logger logging.Logger) (Arbiter, error) {
		return newFakeArbiter(), nil
	})
	_, err := c.Discover(context.Background(), 0, 10)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, ErrorKind(err), test.ShouldEqual, KindNotConnected)
}

func TestDiscoverFindsRespondingServos(t *testing.T) {
	c, _ := newTestController(t)
	found, err := c.Discover(context.Background(), 0, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(found), test.ShouldEqual, 2)
	_, ok := found[session.ServoID(1)]
	test.That(t, ok, test.ShouldBeTrue)
}

func TestStartMotionThenStopDeletesRecord(t *testing.T) {
	c, _ := newTestController(t)
	err := c.StartMotion(context.Background(), []MotionConfig{
		{ID: 1, Kind: session.Sweep, Speed: 100, Acceleration: 50, CyclesTarget: -1,
			Sweep: session.SweepParams{StartPosition: 1000, EndPosition: 3000, Direction: 1}},
	})
	test.That(t, err, test.ShouldBeNil)

	_, ok := c.state.Record(1)
	test.That(t, ok, test.ShouldBeTrue)

	results := c.Stop(context.Background(), []session.ServoID{1})
	test.That(t, len(results), test.ShouldEqual, 1)
	test.That(t, results[0].Err, test.ShouldBeNil)

	_, ok = c.state.Record(1)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPauseThenResume(t *testing.T) {
	c, _ := newTestController(t)
	err := c.StartMotion(context.Background(), []MotionConfig{
		{ID: 1, Kind: session.Wave, Speed: 100, Acceleration: 50, CyclesTarget: -1,
			Wave: session.WaveParams{CenterPosition: 2048, Amplitude: 200, FrequencyHz: 1}},
	})
	test.That(t, err, test.ShouldBeNil)

	pauseResults := c.Pause(context.Background(), []session.ServoID{1})
	test.That(t, pauseResults[0].Err, test.ShouldBeNil)
	flags := c.state.Flags(1)
	test.That(t, flags.Paused, test.ShouldBeTrue)
	test.That(t, flags.EmergencyStop, test.ShouldBeFalse)

	resumeResults := c.Resume(context.Background(), []session.ServoID{1})
	test.That(t, resumeResults[0].Err, test.ShouldBeNil)
	flags = c.state.Flags(1)
	test.That(t, flags.Paused, test.ShouldBeFalse)
}

func TestChangeIDRoundTrip(t *testing.T) {
	c, arb := newTestController(t)
	err := c.ChangeID(context.Background(), 1, 9)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arb.respondsTo[9], test.ShouldBeTrue) // the fake migrates the servo's address on the ID write
	test.That(t, arb.respondsTo[1], test.ShouldBeFalse)
}

func TestChangeIDRejectsInUseTarget(t *testing.T) {
	c, _ := newTestController(t)
	err := c.ChangeID(context.Background(), 1, 2)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, ErrorKind(err), test.ShouldEqual, KindIDInUse)
}

func TestTelemetryDegradesPerChannelOnDisconnectedServo(t *testing.T) {
	c, arb := newTestController(t)
	arb.respondsTo[3] = false
	snap, err := c.Telemetry(context.Background(), 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, snap.Position.OK, test.ShouldBeFalse)
	test.That(t, snap.AngleDegrees.OK, test.ShouldBeFalse)
}

func TestTelemetryComputesAngleDegrees(t *testing.T) {
	c, arb := newTestController(t)
	arb.present[protocol.RegPresentPosition.Addr] = 2048
	snap, err := c.Telemetry(context.Background(), 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, snap.AngleDegrees.OK, test.ShouldBeTrue)
	test.That(t, snap.AngleDegrees.Value, test.ShouldEqual, 0.0)
}
