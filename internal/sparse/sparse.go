// Package sparse maps the hole/data layout of regular files and writes
// destinations that keep the same holes.
package sparse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/fcp/internal/platform"
)

// MinProbeSize is the smallest file probed for holes in auto mode.
const MinProbeSize = 32 << 10

// ZeroBlock is the granularity at which all-zero data is turned into holes
// when zero detection is enabled.
const ZeroBlock = 4096

// Extent describes a contiguous region of a file.
type Extent struct {
	Offset int64
	Length int64
	Hole   bool
}

// End returns the offset just past the extent.
func (e Extent) End() int64 { return e.Offset + e.Length }

// HasHoles reports whether a file of size bytes with blocks 512-byte blocks
// allocated may contain holes.
func HasHoles(size, blocks int64) bool {
	return size > 0 && blocks*512 < size
}

// Analyze yields the extents of f in offset order, covering [0, size)
// exactly. It probes with SEEK_DATA/SEEK_HOLE one extent at a time, so a
// consumer that stops early never pays for the rest of the file. When the
// filesystem cannot report holes the whole file is a single data extent.
func Analyze(f *os.File, size int64) iter.Seq2[Extent, error] {
	return func(yield func(Extent, error) bool) {
		fd := int(f.Fd()) //nolint:gosec // G115: fd conversion is safe for file descriptors
		offset := int64(0)

		for offset < size {
			dataStart, err := unix.Seek(fd, offset, unix.SEEK_DATA)
			switch {
			case errors.Is(err, unix.ENXIO):
				// Rest of file is a hole.
				yield(Extent{Offset: offset, Length: size - offset, Hole: true}, nil)
				return
			case errors.Is(err, unix.EINVAL) && offset == 0:
				yield(Extent{Length: size}, nil)
				return
			case err != nil:
				yield(Extent{}, err)
				return
			}
			dataStart = min(dataStart, size)

			if dataStart > offset {
				if !yield(Extent{Offset: offset, Length: dataStart - offset, Hole: true}, nil) {
					return
				}
				if dataStart == size {
					return
				}
			}

			holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
			switch {
			case errors.Is(err, unix.ENXIO):
				// Data extends to EOF.
				holeStart = size
			case err != nil:
				yield(Extent{}, err)
				return
			}
			holeStart = min(holeStart, size)

			if !yield(Extent{Offset: dataStart, Length: holeStart - dataStart}, nil) {
				return
			}
			offset = holeStart
		}
	}
}

// SplitZeros reads a data extent of f and yields it again with every
// ZeroBlock-aligned run of zero bytes reported as a hole. Hole extents pass
// through unchanged.
func SplitZeros(f *os.File, ext Extent) iter.Seq2[Extent, error] {
	return func(yield func(Extent, error) bool) {
		if ext.Hole || ext.Length == 0 {
			yield(ext, nil)
			return
		}

		const window = 256 * ZeroBlock
		buf := make([]byte, window)
		zero := make([]byte, ZeroBlock)

		var pending Extent
		flush := func() bool {
			if pending.Length == 0 {
				return true
			}
			ok := yield(pending, nil)
			pending = Extent{}
			return ok
		}

		for off := ext.Offset; off < ext.End(); {
			n, err := f.ReadAt(buf[:min(window, ext.End()-off)], off)
			if n == 0 {
				if errors.Is(err, io.EOF) {
					break
				}
				yield(Extent{}, err)
				return
			}
			for i := 0; i < n; i += ZeroBlock {
				blk := buf[i:min(i+ZeroBlock, n)]
				hole := bytes.Equal(blk, zero[:len(blk)])
				at := off + int64(i)
				if pending.Length > 0 && pending.Hole == hole && pending.End() == at {
					pending.Length += int64(len(blk))
					continue
				}
				if !flush() {
					return
				}
				pending = Extent{Offset: at, Length: int64(len(blk)), Hole: hole}
			}
			off += int64(n)
		}
		flush()
	}
}

// Result reports what a sparse copy did.
type Result struct {
	Bytes          int64
	HolesPreserved bool
}

// Copy writes the first size bytes of src into the empty dst through p,
// skipping holes. dst is extended to size first so skipped ranges read as
// zero; if the destination cannot be extended that way, holes are written
// as zero bytes instead. With detectZeros, all-zero blocks inside data
// extents become holes as well.
func Copy(ctx context.Context, p *platform.Pair, src, dst *os.File, size int64, detectZeros bool) (Result, error) {
	var res Result
	fill := dst.Truncate(size) != nil

	write := func(e Extent) error {
		if e.Hole {
			if fill {
				return platform.WriteZeros(dst, e.Offset, e.Length)
			}
			res.HolesPreserved = true
			return nil
		}
		n, err := p.CopyRange(ctx, e.Offset, e.Length)
		res.Bytes += n
		return err
	}

	for ext, err := range Analyze(src, size) {
		if err != nil {
			return res, err
		}
		if !detectZeros || ext.Hole {
			if err := write(ext); err != nil {
				return res, err
			}
			continue
		}
		for sub, err := range SplitZeros(src, ext) {
			if err != nil {
				return res, err
			}
			if err := write(sub); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
