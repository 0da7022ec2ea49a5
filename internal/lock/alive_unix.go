//go:build unix

package lock

import "golang.org/x/sys/unix"

// isAlive reports whether pid names a running process. Signal 0 performs
// no actual signal delivery, only the existence/permission check.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}

	// EPERM means the process exists but we can't signal it — still alive.
	return err == unix.EPERM
}
