//go:build !windows

package ports

// listWindows is unreachable on non-windows builds (List branches on
// runtime.GOOS before calling it) but must exist for the build to link.
func listWindows() []string { return nil }
