package engine

import "golang.org/x/sys/unix"

// umask is the process umask, read once at startup.
var umask = func() uint32 {
	m := unix.Umask(0)
	unix.Umask(m)
	return uint32(m) //nolint:gosec // G115
}()
