package bus

import "time"

// Port is the subset of jacobsa/go-serial's serial.Port this package needs,
// narrowed to an interface so tests can substitute a fake transport (grounded
// in the fakeSerialPort/fakeArbiter test-double idiom used for
// rdk's mockGPIO/mockBoard in components/servo/gpio/servo_test.go).
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(timeout time.Duration) error
}
