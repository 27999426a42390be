// Package platform moves file data between two open descriptors using the
// cheapest mechanism the kernel and filesystems allow.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/copyerr"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
	Clone                    // FICLONE reflink, whole file only
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	case Clone:
		return "reflink"
	default:
		return "unknown"
	}
}

// CloneMinSize is the smallest file for which cloning is attempted when the
// reflink mode is auto.
const CloneMinSize = 256 << 10

// kernelChunk bounds a single copy_file_range or sendfile call.
const kernelChunk = 16 << 20

// ShouldClone reports whether a clone should be attempted for a file of size
// bytes under mode.
func ShouldClone(mode config.Mode, size int64) bool {
	switch mode {
	case config.Never:
		return false
	case config.Always:
		return true
	}
	return size >= CloneMinSize
}

// PairOptions configures a Pair.
type PairOptions struct {
	Reflink config.Mode
	// Limiter, when set, is consulted before every chunk.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Pair copies ranges from one source descriptor to one destination
// descriptor. Once a strategy fails as unsupported, the Pair never tries it
// again, so later ranges of the same file start at the strategy that last
// worked. A Pair is not safe for concurrent use.
type Pair struct {
	src, dst *os.File
	opts     PairOptions

	method CopyMethod
	used   CopyMethod
	moved  bool
}

// NewPair returns a Pair for src and dst. Both descriptors stay owned by the
// caller.
func NewPair(src, dst *os.File, opts PairOptions) *Pair {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := firstMethod
	return &Pair{src: src, dst: dst, opts: opts, method: m, used: m}
}

// Method returns the strategy that moved the most recent bytes, or the
// strategy that would be tried next when nothing has been copied yet.
func (p *Pair) Method() CopyMethod {
	if p.moved {
		return p.used
	}
	return p.method
}

// Clone tries to share every extent of src with dst. It reports false
// without error when cloning is not possible and the reflink mode allows a
// data copy. With reflink=always a failed clone is an error: UnsupportedOperation
// when the filesystem cannot clone, DataCopyFailed otherwise.
func (p *Pair) Clone() (bool, error) {
	if p.opts.Reflink == config.Never {
		return false, nil
	}
	err := cloneFile(p.src, p.dst)
	if err == nil {
		p.used, p.moved = Clone, true
		return true, nil
	}
	if p.opts.Reflink == config.Always {
		return false, copyerr.New(cloneErrKind(err), "clone",
			p.src.Name(), p.dst.Name(), err)
	}
	p.opts.Logger.Debug("clone unavailable", "src", p.src.Name(), "dst", p.dst.Name(), "error", err)
	return false, nil
}

func cloneErrKind(err error) copyerr.Kind {
	if copyerr.IsUnsupported(err) {
		return copyerr.UnsupportedOperation
	}
	return copyerr.DataCopyFailed
}

// CopyRange copies n bytes starting at off in src to the same offset in dst.
// Unsupported strategies fall through to the next one, continuing from the
// offset already reached. It returns the bytes copied, which is less than n
// only when src ended early or an error occurred.
func (p *Pair) CopyRange(ctx context.Context, off, n int64) (int64, error) {
	var total int64
	for total < n {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		chunk := n - total
		limit := int64(kernelChunk)
		if p.method == ReadWrite {
			limit = bufferSize
		}
		if lim := p.opts.Limiter; lim != nil && lim.Limit() != rate.Inf && int64(lim.Burst()) < limit {
			limit = int64(lim.Burst())
		}
		chunk = min(chunk, limit)
		if p.opts.Limiter != nil {
			if err := p.opts.Limiter.WaitN(ctx, int(chunk)); err != nil {
				return total, err
			}
		}

		w, err := p.step(ctx, off+total, int(chunk))
		total += int64(w)
		if w > 0 {
			p.used, p.moved = p.method, true
		}
		switch {
		case err != nil && copyerr.IsUnsupported(err) && p.method != ReadWrite:
			p.fallThrough(err)
		case err != nil:
			return total, fmt.Errorf("%s at offset %d: %w", p.method, off+total, err)
		case w == 0 && p.method != ReadWrite:
			// Some filesystems report zero progress instead of an error.
			p.fallThrough(errors.New("no progress"))
		case w == 0:
			return total, nil
		}
	}
	return total, nil
}

func (p *Pair) fallThrough(cause error) {
	next := nextMethod(p.method)
	p.opts.Logger.Debug("copy strategy fallthrough",
		"src", p.src.Name(), "from", p.method.String(), "to", next.String(), "error", cause)
	p.method = next
}

func (p *Pair) step(ctx context.Context, off int64, n int) (int, error) {
	var w int
	err := retry.Do(
		func() error {
			var err error
			switch p.method {
			case CopyFileRange:
				w, err = copyFileRange(p.src, p.dst, off, n)
			case Sendfile:
				w, err = sendfile(p.src, p.dst, off, n)
			default:
				w, err = readWrite(p.src, p.dst, off, n)
			}
			return err
		},
		retry.Attempts(5),
		retry.Delay(time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	return max(w, 0), err
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

// CopyResult reports the outcome of a whole-file copy.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFile copies the first size bytes of src into dst, cloning first when
// the reflink mode and size allow it. dst is expected to be empty.
func CopyFile(ctx context.Context, src, dst *os.File, size int64, opts PairOptions) (CopyResult, error) {
	p := NewPair(src, dst, opts)
	if ShouldClone(opts.Reflink, size) {
		ok, err := p.Clone()
		if err != nil {
			return CopyResult{Method: Clone}, err
		}
		if ok {
			return CopyResult{BytesWritten: size, Method: Clone}, nil
		}
	}
	Preallocate(dst, size)
	n, err := p.CopyRange(ctx, 0, size)
	return CopyResult{BytesWritten: n, Method: p.Method()}, err
}
