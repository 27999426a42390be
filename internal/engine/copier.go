package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/copyerr"
	"github.com/bamsammich/fcp/internal/event"
	"github.com/bamsammich/fcp/internal/meta"
	"github.com/bamsammich/fcp/internal/platform"
	"github.com/bamsammich/fcp/internal/sparse"
	"github.com/bamsammich/fcp/internal/stats"
)

// Backuper moves an existing destination out of the way before it is
// replaced.
type Backuper interface {
	Enabled() bool
	Backup(dst string) (string, error)
}

// Deps are the collaborators shared by every entry of a run.
type Deps struct {
	Links   *HardlinkTable
	Backup  Backuper
	Limiter *rate.Limiter
	Stats   *stats.Collector
	Events  chan<- event.Event
	Logger  *slog.Logger
}

// Copier copies single entries: regular files, symlinks, special files and
// links. Directories are handled by Tree. A Copier is safe for concurrent
// use by the workers of one run.
type Copier struct {
	opts config.Options
	deps Deps
}

// NewCopier returns a Copier. Missing deps get private defaults.
func NewCopier(opts config.Options, deps Deps) *Copier {
	if deps.Links == nil {
		deps.Links = NewHardlinkTable()
	}
	if deps.Stats == nil {
		deps.Stats = stats.NewCollector()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Copier{opts: opts, deps: deps}
}

// CopyFile copies the non-directory src to exactly dst. src is treated as a
// command line operand for symlink dereferencing.
func (c *Copier) CopyFile(ctx context.Context, src, dst string) Outcome {
	follow := c.opts.Dereference.Follow(true)
	srcLoc := PathLoc(src)
	st, err := srcLoc.stat(follow)
	if err != nil {
		return c.finish(ctx, failed(src, dst, copyerr.Wrap(copyerr.SourceNotFound, "stat", src, dst, err)))
	}
	if isDir(&st) {
		return c.finish(ctx, failed(src, dst, copyerr.New(copyerr.OmitDirectory, "copy", src, dst, nil)))
	}
	return c.finish(ctx, c.copyEntry(ctx, srcLoc, &st, PathLoc(dst), follow))
}

// copyEntry copies one non-directory entry whose (possibly followed) stat
// is st. follow says whether st was obtained by following a symlink.
//
//nolint:gocyclo // one switch per entry kind and overwrite rule
func (c *Copier) copyEntry(ctx context.Context, src Loc, st *unix.Stat_t, dst Loc, follow bool) Outcome {
	out := Outcome{Src: src.Path, Dst: dst.Path}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	exists, err := c.prepareDestination(src, st, dst, &out)
	if err != nil || out.Skipped {
		out.Err = err
		return out
	}

	typ := fileType(st)
	switch {
	case c.opts.Link == config.LinkSymbolic:
		return c.symlinkTo(src, dst, out)
	case c.opts.Link == config.LinkHard:
		if err := dst.linkFrom(src); err != nil {
			out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "link", src.Path, dst.Path, err)
			return out
		}
		out.Strategy = StrategyHardlink
		return out
	case typ == unix.S_IFLNK:
		return c.copySymlink(src, st, dst, out)
	case typ == unix.S_IFREG:
		if c.opts.Preserve.Has(config.PreserveLinks) && st.Nlink > 1 {
			return c.copyLinked(ctx, src, st, dst, exists, follow, out)
		}
		return c.copyRegular(ctx, src, st, dst, exists, follow, out)
	case typ == unix.S_IFSOCK:
		out.Skipped = true
		out.Warnings = append(out.Warnings, fmt.Errorf("skipping socket '%s'", src.Path))
		return out
	default:
		return c.copySpecial(src, st, dst, out)
	}
}

// prepareDestination applies the same-file check and overwrite rules to an
// existing destination. It returns whether a destination is still present
// afterwards; out.Skipped is set when policy leaves it alone, including a
// hard link request whose destination already is that link.
//
//nolint:gocyclo // overwrite rules are checked in a fixed order
func (c *Copier) prepareDestination(src Loc, st *unix.Stat_t, dst Loc, out *Outcome) (bool, error) {
	dstSt, err := dst.stat(false)
	if errors.Is(err, unix.ENOENT) {
		return false, nil
	}
	if err != nil {
		return false, copyerr.Wrap(copyerr.DataCopyFailed, "stat", src.Path, dst.Path, err)
	}

	if c.opts.Link == config.LinkHard && devIno(&dstSt) == devIno(st) && src.Path != dst.Path {
		out.Strategy = StrategyHardlink
		out.Skipped = true
		return true, nil
	}
	dstTarget, targetErr := dst.stat(true)
	if devIno(&dstSt) == devIno(st) || (targetErr == nil && !isSymlink(st) && devIno(&dstTarget) == devIno(st)) {
		return true, copyerr.New(copyerr.SameFileConflict, "copy", src.Path, dst.Path, nil)
	}
	// A symlink source resolving to a regular destination would replace the
	// data it points at.
	if isSymlink(st) && !isSymlink(&dstSt) {
		if srcTarget, err := src.stat(true); err == nil && devIno(&srcTarget) == devIno(&dstSt) {
			return true, copyerr.New(copyerr.SameFileConflict, "copy", src.Path, dst.Path, nil)
		}
	}
	if isDir(&dstSt) {
		return true, copyerr.New(copyerr.DestinationExists, "cannot overwrite directory with non-directory",
			src.Path, dst.Path, unix.EISDIR)
	}

	switch {
	case c.opts.NoClobber || c.opts.Update == config.UpdateNone:
		out.Skipped = true
		return true, nil
	case c.opts.Update == config.UpdateNoneFail:
		return true, copyerr.New(copyerr.DestinationExists, "not replacing", src.Path, dst.Path, unix.EEXIST)
	case c.opts.Update == config.UpdateOlder && !newer(mtimeOf(st), mtimeOf(&dstSt)):
		out.Skipped = true
		return true, nil
	}

	regular := fileType(st) == unix.S_IFREG && c.opts.Link == config.LinkCopy
	if regular && isSymlink(&dstSt) && errors.Is(targetErr, unix.ENOENT) &&
		!c.opts.Force && !c.opts.RemoveDestination && !c.backupEnabled() {
		return true, copyerr.New(copyerr.DestinationExists, "not writing through dangling symlink",
			src.Path, dst.Path, nil)
	}

	if c.backupEnabled() {
		to, err := c.deps.Backup.Backup(dst.Path)
		if err != nil {
			return true, copyerr.Wrap(copyerr.DataCopyFailed, "backup", src.Path, dst.Path, err)
		}
		out.Backup = to
		return false, nil
	}

	// Links, symlinks and special files cannot be written in place. Link
	// modes only replace an existing destination when forced.
	mustRemove := c.opts.RemoveDestination || !regular ||
		(regular && isSymlink(&dstSt) && errors.Is(targetErr, unix.ENOENT))
	if c.opts.Link != config.LinkCopy && !c.opts.Force && !c.opts.RemoveDestination {
		return true, copyerr.New(copyerr.DestinationExists, "create link", src.Path, dst.Path, unix.EEXIST)
	}
	if mustRemove {
		if err := dst.unlink(); err != nil && !errors.Is(err, unix.ENOENT) {
			return true, copyerr.Wrap(copyerr.DataCopyFailed, "remove", src.Path, dst.Path, err)
		}
		return false, nil
	}
	return true, nil
}

func (c *Copier) backupEnabled() bool {
	return c.deps.Backup != nil && c.deps.Backup.Enabled()
}

func (c *Copier) symlinkTo(src, dst Loc, out Outcome) Outcome {
	target, err := filepath.Abs(src.Path)
	if err == nil {
		err = dst.symlink(target)
	}
	if err != nil {
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "symlink", src.Path, dst.Path, err)
		return out
	}
	out.Strategy = StrategySymlink
	return out
}

func (c *Copier) copySymlink(src Loc, st *unix.Stat_t, dst Loc, out Outcome) Outcome {
	target, err := src.readlink()
	if err != nil {
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "readlink", src.Path, dst.Path, err)
		return out
	}
	if err := dst.symlink(target); err != nil {
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "symlink", src.Path, dst.Path, err)
		return out
	}
	out.Strategy = StrategySymlink
	c.applyMeta(&meta.Source{Path: src.Path, Dir: src.Dir, Name: src.Name, Stat: *st, Symlink: true},
		meta.Target{Dir: dst.Dir, Name: dst.Name, Path: dst.Path, Symlink: true}, &out)
	return out
}

func (c *Copier) copySpecial(src Loc, st *unix.Stat_t, dst Loc, out Outcome) Outcome {
	var err error
	mode := perm(st) & 0o777
	switch fileType(st) {
	case unix.S_IFIFO:
		err = mkfifo(dst, mode)
	case unix.S_IFCHR, unix.S_IFBLK:
		err = mknod(dst, fileType(st)|mode, rdev(st))
	default:
		err = unix.EINVAL
	}
	if err != nil {
		out.Err = copyerr.New(copyerr.SpecialFileFailed, "mknod", src.Path, dst.Path, err)
		return out
	}
	out.Strategy = StrategySpecial
	c.applyMeta(&meta.Source{Path: src.Path, Dir: src.Dir, Name: src.Name, Stat: *st},
		meta.Target{Dir: dst.Dir, Name: dst.Name, Path: dst.Path}, &out)
	return out
}

// copyLinked copies a regular file with several links. The first entry of
// an inode copies its data; the others become hard links to that copy. When
// the first copy fails, later entries copy the data themselves.
func (c *Copier) copyLinked(ctx context.Context, src Loc, st *unix.Stat_t, dst Loc, exists, follow bool, out Outcome) Outcome {
	claim, first := c.deps.Links.Claim(devIno(st), dst.Path)
	if first {
		res := c.copyRegular(ctx, src, st, dst, exists, follow, out)
		claim.Finish(res.Err)
		return res
	}

	if err := claim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			out.Err = err
			return out
		}
		return c.copyRegular(ctx, src, st, dst, exists, follow, out)
	}
	if exists {
		if err := dst.unlink(); err != nil && !errors.Is(err, unix.ENOENT) {
			out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "remove", src.Path, dst.Path, err)
			return out
		}
	}
	if err := dst.linkFrom(PathLoc(claim.Dst)); err != nil {
		c.deps.Logger.Debug("hard link failed, copying data", "src", src.Path, "dst", dst.Path, "error", err)
		return c.copyRegular(ctx, src, st, dst, false, follow, out)
	}
	out.Strategy = StrategyHardlink
	return out
}

func (c *Copier) copyRegular(ctx context.Context, src Loc, st *unix.Stat_t, dst Loc, exists, follow bool, out Outcome) Outcome {
	flags := unix.O_RDONLY
	if !follow {
		flags |= unix.O_NOFOLLOW
	}
	sf, err := src.open(flags, 0)
	if err != nil {
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "open", src.Path, dst.Path, err)
		return out
	}
	defer sf.Close()

	var sst unix.Stat_t
	if err := unix.Fstat(int(sf.Fd()), &sst); err != nil { //nolint:gosec // G115
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "fstat", src.Path, dst.Path, err)
		return out
	}
	if devIno(&sst) != devIno(st) {
		out.Err = copyerr.New(copyerr.DataCopyFailed, "open", src.Path, dst.Path,
			errors.New("source replaced while copying"))
		return out
	}

	df, err := c.openDestination(dst, &sst, exists)
	if err != nil {
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "open", src.Path, dst.Path, err)
		return out
	}

	if c.opts.AttributesOnly {
		out.Strategy = StrategyAttributesOnly
	} else {
		out.Strategy, out.Bytes, out.HolesPreserved, err = c.copyData(ctx, sf, df, &sst)
		if err != nil {
			df.Close()
			out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "copy", src.Path, dst.Path, err)
			return out
		}
	}

	c.applyMeta(&meta.Source{Path: src.Path, File: sf, Stat: sst},
		meta.Target{File: df, Dir: dst.Dir, Name: dst.Name, Path: dst.Path}, &out)

	if err := df.Close(); err != nil && out.Err == nil {
		out.Err = copyerr.Wrap(copyerr.DataCopyFailed, "close", src.Path, dst.Path, err)
	}
	if out.Err == nil && c.opts.Verify && !c.opts.AttributesOnly {
		out.Err = c.verify(ctx, src.Path, dst.Path)
	}
	return out
}

// openDestination opens an existing destination for overwriting, or creates
// it. A destination that cannot be opened is removed and recreated when
// forced.
func (c *Copier) openDestination(dst Loc, st *unix.Stat_t, exists bool) (*os.File, error) {
	if exists {
		flags := unix.O_WRONLY
		if !c.opts.AttributesOnly {
			flags |= unix.O_TRUNC
		}
		f, err := dst.open(flags, 0)
		if err == nil {
			return f, nil
		}
		if !c.opts.Force || !(errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM)) {
			return nil, err
		}
		if err := dst.unlink(); err != nil && !errors.Is(err, unix.ENOENT) {
			return nil, err
		}
	}
	return dst.open(unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL, perm(st)&0o777)
}

func (c *Copier) copyData(ctx context.Context, sf, df *os.File, st *unix.Stat_t) (Strategy, int64, bool, error) {
	size := st.Size
	popts := platform.PairOptions{
		Reflink: c.opts.Reflink,
		Limiter: c.deps.Limiter,
		Logger:  c.deps.Logger,
	}
	if !c.wantSparse(st) {
		res, err := platform.CopyFile(ctx, sf, df, size, popts)
		return strategyOf(res.Method), res.BytesWritten, false, err
	}

	p := platform.NewPair(sf, df, popts)
	if platform.ShouldClone(c.opts.Reflink, size) {
		ok, err := p.Clone()
		if err != nil {
			return StrategyReflink, 0, false, err
		}
		if ok {
			return StrategyReflink, size, false, nil
		}
	}
	res, err := sparse.Copy(ctx, p, sf, df, size, c.opts.Sparse == config.Always)
	return strategyOf(p.Method()), res.Bytes, res.HolesPreserved, err
}

// wantSparse decides whether holes are probed. In auto mode small files and
// files whose allocation covers their size are copied densely.
func (c *Copier) wantSparse(st *unix.Stat_t) bool {
	switch c.opts.Sparse {
	case config.Always:
		return true
	case config.Never:
		return false
	}
	return st.Size >= sparse.MinProbeSize && sparse.HasHoles(st.Size, st.Blocks)
}

func (c *Copier) applyMeta(src *meta.Source, dst meta.Target, out *Outcome) {
	res, err := meta.Apply(src, dst, c.opts.Preserve, c.opts)
	out.Warnings = append(out.Warnings, res.Warnings...)
	if err != nil && out.Err == nil {
		out.Err = err
	}
}

// finish updates statistics, emits the event for o and returns it.
func (c *Copier) finish(ctx context.Context, o Outcome) Outcome {
	s := c.deps.Stats
	for _, w := range o.Warnings {
		c.deps.Logger.Warn("warning", "src", o.Src, "dst", o.Dst, "error", w)
	}
	if o.Backup != "" {
		s.AddBackupsCreated(1)
		c.emit(ctx, event.Event{Type: event.BackupCreated, Src: o.Dst, Dst: o.Backup})
	}

	ev := event.Event{Src: o.Src, Dst: o.Dst, Size: o.Bytes, Strategy: o.Strategy.String(), Error: o.Err}
	switch {
	case o.Failed():
		s.AddFilesFailed(1)
		ev.Type = event.EntryFailed
		c.deps.Logger.Debug("copy failed", "src", o.Src, "dst", o.Dst, "error", o.Err)
	case o.Skipped:
		s.AddFilesSkipped(1)
		ev.Type = event.EntrySkipped
	case o.Strategy == StrategyNone:
		return o
	case o.Strategy == StrategyDirectory:
		s.AddDirsCreated(1)
		ev.Type = event.DirCreated
	case o.Strategy == StrategyHardlink:
		s.AddHardlinksCreated(1)
		ev.Type = event.HardlinkCreated
	case o.Strategy == StrategySymlink:
		s.AddSymlinksCreated(1)
		ev.Type = event.SymlinkCreated
	case o.Strategy == StrategySpecial:
		s.AddSpecialsCreated(1)
		ev.Type = event.SpecialCreated
	default:
		s.AddFilesCopied(1)
		s.AddBytesCopied(o.Bytes)
		if o.Strategy == StrategyReflink {
			s.AddFilesReflinked(1)
		}
		if o.HolesPreserved {
			s.AddFilesSparse(1)
		}
		ev.Type = event.FileCopied
		c.deps.Logger.Debug("copied", "src", o.Src, "dst", o.Dst, "strategy", ev.Strategy, "bytes", o.Bytes)
	}
	c.emit(ctx, ev)
	return o
}

// emit delivers e unless the run is cancelled. Events are never dropped so
// that verbose output lists every entry.
func (c *Copier) emit(ctx context.Context, e event.Event) {
	if c.deps.Events == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case c.deps.Events <- e:
	case <-ctx.Done():
	}
}
