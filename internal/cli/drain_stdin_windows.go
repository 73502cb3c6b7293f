//go:build windows

package cli

// drainStdin is a no-op on Windows.
func drainStdin() {}
