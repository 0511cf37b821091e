package protocol

// Register names a symbolic control-table entry. Offsets and widths below
// follow the Feetech STS/SMS control table as used by the ST-series SDK
// referenced in the original source (STservo_sdk.sts); the map is opaque to
// callers of the bus package — only the Arbiter's typed operations are
// externally visible.
type Register struct {
	Addr  byte
	Width int
}

var (
	RegModelNumber  = Register{Addr: 3, Width: 2}
	RegID           = Register{Addr: 5, Width: 1}
	RegBaudRate     = Register{Addr: 6, Width: 1}
	RegMinAngleLim  = Register{Addr: 9, Width: 2}
	RegMaxAngleLim  = Register{Addr: 11, Width: 2}
	RegCWDeadband   = Register{Addr: 26, Width: 1}
	RegCCWDeadband  = Register{Addr: 27, Width: 1}
	RegOffset       = Register{Addr: 31, Width: 2}
	RegLock         = Register{Addr: 55, Width: 1}
	RegMode         = Register{Addr: 33, Width: 1}
	RegTorqueEnable = Register{Addr: 40, Width: 1}
	RegAcceleration = Register{Addr: 41, Width: 1}
	RegGoalPosition = Register{Addr: 42, Width: 2}
	RegGoalTime     = Register{Addr: 44, Width: 2}
	RegGoalSpeed    = Register{Addr: 46, Width: 2}

	RegPresentPosition = Register{Addr: 56, Width: 2}
	RegPresentSpeed    = Register{Addr: 58, Width: 2}
	RegPresentLoad     = Register{Addr: 60, Width: 2}
	RegPresentVoltage  = Register{Addr: 62, Width: 1}
	RegPresentTemp     = Register{Addr: 63, Width: 1}
	RegMoving          = Register{Addr: 66, Width: 1}
	RegPresentCurrent  = Register{Addr: 69, Width: 2}
)

// Servo operating modes, written to RegMode.
const (
	ModeJoint    byte = 0
	ModeWheel    byte = 1
	ModeRotation      = ModeWheel
)

// EEPROM lock states, written to RegLock.
const (
	LockUnlocked byte = 0
	LockLocked   byte = 1
)

// MechanicalMidpoint is the seed position used when a worker can't read a
// live position at startup.
const MechanicalMidpoint = 2048

// PositionRange bounds the raw position register's domain.
const (
	PositionMin = 0
	PositionMax = 4095
)

// SpeedMagnitudeOffset is the wire offset applied to a negative speed:
// |speed| + SpeedMagnitudeOffset.
const SpeedMagnitudeOffset = 1024

// EncodeSignedSpeed maps a signed continuous-rotation speed onto its
// control-table wire encoding: the magnitude unchanged for speed >= 0, or
// |speed| + 1024 for speed < 0.
func EncodeSignedSpeed(signedSpeed int) uint16 {
	if signedSpeed >= 0 {
		return uint16(signedSpeed)
	}
	return uint16(-signedSpeed) + SpeedMagnitudeOffset
}

// baudSymbols is the ST-series control-table baud-rate code table (RegBaudRate).
var baudSymbols = map[uint]byte{
	1_000_000: 0,
	500_000:   1,
	250_000:   2,
	128_000:   3,
	115_200:   4,
	76_800:    5,
	57_600:    6,
	38_400:    7,
}

// BaudSymbolFor returns the control-table code for a configured baud rate,
// used by the recovery ladder's baud-sanity stage.
func BaudSymbolFor(baud uint) (byte, bool) {
	sym, ok := baudSymbols[baud]
	return sym, ok
}
