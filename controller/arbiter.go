package controller

import (
	"context"

	"github.com/motioncore/stservoctl/bus"
	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/motion"
	"github.com/motioncore/stservoctl/protocol"
)

// Arbiter is the full set of bus operations the façade calls directly, on
// top of what the motion engine needs. *bus.Arbiter satisfies it
// structurally; tests substitute a fake.
type Arbiter interface {
	motion.Arbiter

	WriteU16(ctx context.Context, id byte, reg protocol.Register, v uint16) (protocol.TransportResult, error)
	UnlockEEPROM(ctx context.Context, id byte) (protocol.TransportResult, error)
	LockEEPROM(ctx context.Context, id byte) (protocol.TransportResult, error)
	Close() error
}

// openFunc opens a new Arbiter over portName at baud. Overridden in tests.
type openFunc func(portName string, baud uint, logger logging.Logger) (Arbiter, error)

func openBus(portName string, baud uint, logger logging.Logger) (Arbiter, error) {
	return bus.Open(portName, baud, logger)
}
