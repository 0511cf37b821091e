// Package ports enumerates the serial devices the OS currently exposes, for
// the controller's /ports endpoint. This is an external collaborator in the
// sense of spec.md §1: the core never reads this list itself, it only
// surfaces whatever the host OS reports so a caller can pick a port name to
// hand to Connect.
package ports

import (
	"path/filepath"
	"runtime"
	"sort"
)

// candidateGlobs are the device-node patterns a servo USB-serial adapter
// shows up under on each platform FTDI/CH340/CP210x drivers commonly use.
var candidateGlobs = map[string][]string{
	"linux":   {"/dev/ttyUSB*", "/dev/ttyACM*"},
	"darwin":  {"/dev/tty.usbserial*", "/dev/tty.usbmodem*", "/dev/cu.usbserial*", "/dev/cu.usbmodem*"},
	"windows": {"COM*"},
}

// List returns the sorted set of serial device paths currently present.
// windows COM ports aren't filesystem globbable; listWindows (ports_windows.go)
// is used instead when GOOS is windows.
func List() []string {
	if runtime.GOOS == "windows" {
		return listWindows()
	}
	var found []string
	for _, pattern := range candidateGlobs[runtime.GOOS] {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		found = append(found, matches...)
	}
	sort.Strings(found)
	return found
}
