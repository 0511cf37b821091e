// Package bus implements the Bus Arbiter: the single owner of the serial
// endpoint, exposing typed register operations over a bounded-retry
// transport, plus the group sync writer for batched position/speed commands.
package bus

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/protocol"
)

// Per-frame lock-hold timeouts.
const (
	singleOpTimeout = 10 * time.Millisecond
	syncOpTimeout   = 20 * time.Millisecond
)

// Arbiter owns the single serial handle. Every call acquires mu for the
// entire TX+RX+retry window; no other code is allowed to touch port.
type Arbiter struct {
	mu     sync.Mutex
	port   Port
	logger logging.Logger
}

// Open opens portName at baud and returns an Arbiter owning it.
func Open(portName string, baud uint, logger logging.Logger) (*Arbiter, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %s", portName)
	}
	return New(port, logger), nil
}

// New wraps an already-open Port (used directly by tests with a fake Port).
func New(port Port, logger logging.Logger) *Arbiter {
	return &Arbiter{port: port, logger: logger.Named("bus")}
}

// Close releases the underlying port.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port.Close()
}

// transactLocked sends one frame and, when expectReply is set, reads and
// decodes the one expected reply. It must be called with mu held.
func (a *Arbiter) transactLocked(ctx context.Context, id byte, inst protocol.Instruction, params []byte, expectReply bool, timeout time.Duration) (protocol.Reply, protocol.TransportResult, error) {
	frame, err := protocol.EncodeFrame(id, inst, params)
	if err != nil {
		return protocol.Reply{}, protocol.TxFail, err
	}
	if err := a.port.SetReadTimeout(timeout); err != nil {
		return protocol.Reply{}, protocol.TxFail, errors.Wrap(err, "setting read timeout")
	}
	if _, err := a.port.Write(frame); err != nil {
		return protocol.Reply{}, protocol.TxFail, errors.Wrap(err, "writing frame")
	}
	if !expectReply {
		return protocol.Reply{}, protocol.Success, nil
	}

	header, err := utils.ReadBytes(ctx, a.port, 4)
	if err != nil {
		return protocol.Reply{}, protocol.RxTimeout, err
	}
	length := int(header[3])
	rest, err := utils.ReadBytes(ctx, a.port, length)
	if err != nil {
		return protocol.Reply{}, protocol.RxTimeout, err
	}
	full := append(header, rest...)
	reply, err := protocol.DecodeReply(full)
	if err != nil {
		return protocol.Reply{}, protocol.ClassifyReadError(err), err
	}
	if reply.Error != 0 {
		return reply, protocol.RxCorrupt, errors.Errorf("servo %d reported status error 0x%02x", id, reply.Error)
	}
	return reply, protocol.Success, nil
}

// Ping asks id to identify itself, returning its model number.
func (a *Arbiter) Ping(ctx context.Context, id byte) (uint16, protocol.TransportResult, error) {
	a.mu.Lock()
	_, result, err := a.transactLocked(ctx, id, protocol.InstPing, nil, true, singleOpTimeout)
	a.mu.Unlock()
	if result != protocol.Success {
		return 0, result, err
	}
	return a.ReadU16(ctx, id, protocol.RegModelNumber)
}

// ReadU8 reads a single-byte register, retried up to 3 times.
func (a *Arbiter) ReadU8(ctx context.Context, id byte, reg protocol.Register) (byte, protocol.TransportResult, error) {
	var value byte
	result, err := withRetry(singleReadPolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		reply, result, err := a.transactLocked(ctx, id, protocol.InstRead, []byte{reg.Addr, 1}, true, singleOpTimeout)
		a.mu.Unlock()
		if result != protocol.Success {
			return result, err
		}
		if len(reply.Params) < 1 {
			return protocol.RxCorrupt, errors.New("short read reply")
		}
		value = reply.Params[0]
		return protocol.Success, nil
	})
	return value, result, err
}

// ReadU16 reads a two-byte little-endian register, retried up to 3 times.
func (a *Arbiter) ReadU16(ctx context.Context, id byte, reg protocol.Register) (uint16, protocol.TransportResult, error) {
	var value uint16
	result, err := withRetry(singleReadPolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		reply, result, err := a.transactLocked(ctx, id, protocol.InstRead, []byte{reg.Addr, 2}, true, singleOpTimeout)
		a.mu.Unlock()
		if result != protocol.Success {
			return result, err
		}
		if len(reply.Params) < 2 {
			return protocol.RxCorrupt, errors.New("short read reply")
		}
		value = binary.LittleEndian.Uint16(reply.Params)
		return protocol.Success, nil
	})
	return value, result, err
}

// WriteU8 writes a single byte register in a single attempt; callers that
// need retried writes (EEPROM lock/unlock, torque) use writeU8Retried.
func (a *Arbiter) WriteU8(ctx context.Context, id byte, reg protocol.Register, v byte) (protocol.TransportResult, error) {
	return withRetry(singleWritePolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, result, err := a.transactLocked(ctx, id, protocol.InstWrite, []byte{reg.Addr, v}, true, singleOpTimeout)
		return result, err
	})
}

// WriteU16 writes a two-byte little-endian register, single attempt.
func (a *Arbiter) WriteU16(ctx context.Context, id byte, reg protocol.Register, v uint16) (protocol.TransportResult, error) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return withRetry(singleWritePolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		params := append([]byte{reg.Addr}, buf...)
		_, result, err := a.transactLocked(ctx, id, protocol.InstWrite, params, true, singleOpTimeout)
		return result, err
	})
}

// writeU8Retried writes a single byte with the EEPROM-guarded retry policy
// (up to 5 attempts, 50ms backoff) used for torque-enable and lock writes.
func (a *Arbiter) writeU8Retried(ctx context.Context, id byte, reg protocol.Register, v byte) (protocol.TransportResult, error) {
	return withRetry(eepromGuardedPolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, result, err := a.transactLocked(ctx, id, protocol.InstWrite, []byte{reg.Addr, v}, true, singleOpTimeout)
		return result, err
	})
}

// WriteTorque sets torque-enable, retried per the EEPROM-guarded policy.
func (a *Arbiter) WriteTorque(ctx context.Context, id byte, enable bool) (protocol.TransportResult, error) {
	v := byte(0)
	if enable {
		v = 1
	}
	return a.writeU8Retried(ctx, id, protocol.RegTorqueEnable, v)
}

// UnlockEEPROM / LockEEPROM toggle the servo's EEPROM write-protect register.
func (a *Arbiter) UnlockEEPROM(ctx context.Context, id byte) (protocol.TransportResult, error) {
	return a.writeU8Retried(ctx, id, protocol.RegLock, protocol.LockUnlocked)
}

func (a *Arbiter) LockEEPROM(ctx context.Context, id byte) (protocol.TransportResult, error) {
	return a.writeU8Retried(ctx, id, protocol.RegLock, protocol.LockLocked)
}

// WritePosEx issues a combined position/speed/acceleration command: one
// block write spanning Acceleration, GoalPosition, GoalTime (zeroed) and
// GoalSpeed, matching the real ST "WritePosEx" control-table layout.
func (a *Arbiter) WritePosEx(ctx context.Context, id byte, pos uint16, speed uint16, acc byte) (protocol.TransportResult, error) {
	params := make([]byte, 0, 8)
	params = append(params, protocol.RegAcceleration.Addr, acc)
	posBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(posBuf, pos)
	params = append(params, posBuf...)
	params = append(params, 0, 0) // goal time, unused
	speedBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(speedBuf, speed)
	params = append(params, speedBuf...)

	return withRetry(singleWritePolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, result, err := a.transactLocked(ctx, id, protocol.InstWrite, params, true, singleOpTimeout)
		return result, err
	})
}

// WriteSpec puts id into wheel (continuous rotation) mode and issues a
// signed velocity command; a negative speed is encoded on the wire as
// |speed| + 1024.
func (a *Arbiter) WriteSpec(ctx context.Context, id byte, signedSpeed int, acc byte) (protocol.TransportResult, error) {
	if result, err := a.writeU8Retried(ctx, id, protocol.RegMode, protocol.ModeWheel); result != protocol.Success {
		return result, err
	}

	speed := protocol.EncodeSignedSpeed(signedSpeed)

	params := make([]byte, 0, 8)
	params = append(params, protocol.RegAcceleration.Addr, acc)
	params = append(params, 0, 0, 0, 0) // goal position and goal time, unused in wheel mode
	speedBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(speedBuf, speed)
	params = append(params, speedBuf...)

	return withRetry(singleWritePolicy, func() (protocol.TransportResult, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, result, err := a.transactLocked(ctx, id, protocol.InstWrite, params, true, singleOpTimeout)
		return result, err
	})
}
