//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

const firstMethod = CopyFileRange

func nextMethod(m CopyMethod) CopyMethod {
	switch m {
	case CopyFileRange:
		return Sendfile
	default:
		return ReadWrite
	}
}

//nolint:gosec // G115: fd values are small non-negative integers
func cloneFile(src, dst *os.File) error {
	return unix.IoctlFileClone(int(dst.Fd()), int(src.Fd()))
}

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(src, dst *os.File, off int64, n int) (int, error) {
	roff, woff := off, off
	return unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, n, 0)
}

// sendfile writes at the destination's file position, so it is moved to off
// before every call.
//
//nolint:gosec // G115: fd values are small non-negative integers
func sendfile(src, dst *os.File, off int64, n int) (int, error) {
	if _, err := dst.Seek(off, 0); err != nil {
		return 0, err
	}
	roff := off
	return unix.Sendfile(int(dst.Fd()), int(src.Fd()), &roff, n)
}
