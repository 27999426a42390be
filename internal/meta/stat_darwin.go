//go:build darwin

package meta

import (
	"os"

	"golang.org/x/sys/unix"
)

func atime(st *unix.Stat_t) unix.Timespec { return st.Atimespec }
func mtime(st *unix.Stat_t) unix.Timespec { return st.Mtimespec }

// futimes sets times by path; Darwin lacks AT_EMPTY_PATH.
func futimes(f *os.File, ts []unix.Timespec) error {
	return unix.UtimesNanoAt(unix.AT_FDCWD, f.Name(), ts, 0)
}

func entryPath(_ *os.File, _, path string) string { return path }
