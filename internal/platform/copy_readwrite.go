package platform

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// readWrite copies up to n bytes at off using pread/pwrite with a pooled
// buffer. Short writes are retried until the read chunk is fully written.
//
//nolint:gosec // G115: fd values are small non-negative integers
func readWrite(src, dst *os.File, off int64, n int) (int, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := (*bufp)[:min(n, bufferSize)]

	r, err := unix.Pread(int(src.Fd()), buf, off)
	if err != nil || r == 0 {
		return 0, err
	}

	written := 0
	for written < r {
		w, err := unix.Pwrite(int(dst.Fd()), buf[written:r], off+int64(written))
		if err != nil {
			return written, err
		}
		written += w
	}
	return written, nil
}

// WriteZeros writes n zero bytes at off. It backs sparse copies on
// filesystems where extending a file with ftruncate is not possible.
//
//nolint:gosec // G115: fd values are small non-negative integers
func WriteZeros(dst *os.File, off, n int64) error {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp
	clear(buf)

	for n > 0 {
		chunk := buf[:min(n, bufferSize)]
		w, err := unix.Pwrite(int(dst.Fd()), chunk, off)
		if err != nil {
			return err
		}
		off += int64(w)
		n -= int64(w)
	}
	return nil
}
