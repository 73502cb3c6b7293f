//go:build !windows

package cli

import (
	"os"
	"syscall"
	"time"
)

// drainStdin discards terminal responses survey leaves on stdin (cursor
// position reports) so they don't leak into the next prompt or the shell.
func drainStdin() {
	fd := int(os.Stdin.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		return
	}
	defer func() { _ = syscall.SetNonblock(fd, false) }()

	buf := make([]byte, 256)
	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		n, err := syscall.Read(fd, buf)
		if n > 0 {
			deadline = time.Now().Add(80 * time.Millisecond)
			continue
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		break
	}
}
