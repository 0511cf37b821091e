//go:build windows

package ports

import (
	"fmt"

	"github.com/jacobsa/go-serial/serial"
)

// maxCOMProbe bounds the COM-port probe range; servo adapters on Windows
// almost always enumerate below COM64.
const maxCOMProbe = 64

// listWindows probes COM1..COM64 by attempting a brief open/close, since
// there's no filesystem glob for COM ports the way /dev/tty* works
// elsewhere. A port that opens successfully is reported present.
func listWindows() []string {
	var found []string
	for i := 1; i <= maxCOMProbe; i++ {
		name := fmt.Sprintf("COM%d", i)
		port, err := serial.Open(serial.OpenOptions{
			PortName:        name,
			BaudRate:        9600,
			DataBits:        8,
			StopBits:        1,
			MinimumReadSize: 1,
		})
		if err != nil {
			continue
		}
		port.Close()
		found = append(found, name)
	}
	return found
}
