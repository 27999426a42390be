//go:build linux

package meta

import (
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

func atime(st *unix.Stat_t) unix.Timespec { return st.Atim }
func mtime(st *unix.Stat_t) unix.Timespec { return st.Mtim }

// futimes sets times on an open descriptor, falling back to its path on
// kernels that reject AT_EMPTY_PATH for utimensat.
//
//nolint:gosec // G115: fd values are small non-negative integers
func futimes(f *os.File, ts []unix.Timespec) error {
	err := unix.UtimesNanoAt(int(f.Fd()), "", ts, unix.AT_EMPTY_PATH)
	if err == nil {
		return nil
	}
	if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, fdPath(int(f.Fd()), f.Name()), ts, 0); err2 != nil {
		return err
	}
	return nil
}

var procFD = sync.OnceValue(func() bool {
	_, err := os.Stat("/proc/self/fd")
	return err == nil
})

// fdPath names the open descriptor fd through /proc, so the kernel resolves
// it to the same inode without walking path again.
func fdPath(fd int, path string) string {
	if !procFD() {
		return path
	}
	return "/proc/self/fd/" + strconv.Itoa(fd)
}

// entryPath names the entry Name inside the open directory dir for calls
// that only take a path. The final component is never followed by the
// l-prefixed calls it is passed to.
//
//nolint:gosec // G115: fd values are small non-negative integers
func entryPath(dir *os.File, name, path string) string {
	if dir == nil || !procFD() {
		return path
	}
	return "/proc/self/fd/" + strconv.Itoa(int(dir.Fd())) + "/" + name
}
