package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/copyerr"
	"github.com/bamsammich/fcp/internal/meta"
)

// ParallelThreshold is the number of entries a directory needs before its
// children are dispatched to concurrent workers.
const ParallelThreshold = 64

// Tree copies directory trees. Directories with many entries spread their
// children over a worker budget shared by the whole tree; a child that finds
// the budget exhausted runs on the dispatching goroutine, so nested
// directories never wait on each other for a worker.
type Tree struct {
	c   *Copier
	sem *semaphore.Weighted
}

// NewTree returns a Tree that runs at most workers extra goroutines.
// workers <= 0 selects the number of CPUs.
func NewTree(c *Copier, workers int) *Tree {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Tree{c: c, sem: semaphore.NewWeighted(int64(workers))}
}

// dirNode is a directory being copied. parent links form the ancestor chain
// used to detect cycles.
type dirNode struct {
	src, dst   Loc
	srcF, dstF *os.File
	id         DevIno
	parent     *dirNode
}

type walk struct {
	t    *Tree
	rep  *Report
	opts config.Options
	// fast selects descriptor-relative traversal with parallel dispatch.
	// The slow path resolves every entry by path, one at a time, and is
	// used when entries need per-entry decisions that depend on the
	// destination (backups, update, no-clobber) or when symlinks are
	// followed everywhere.
	fast    bool
	rootDst DevIno
}

// Copy copies the directory src to dst, creating dst when absent and
// merging into it otherwise.
func (t *Tree) Copy(ctx context.Context, src, dst string) *Report {
	w := &walk{t: t, rep: &Report{}, opts: t.c.opts}
	w.fast = fastPath && w.opts.Simple()

	srcLoc := PathLoc(src)
	st, err := srcLoc.stat(w.opts.Dereference.Follow(true))
	if err != nil {
		w.fail(ctx, src, dst, copyerr.Wrap(copyerr.SourceNotFound, "stat", src, dst, err))
		return w.rep
	}
	if !isDir(&st) {
		w.record(ctx, t.c.copyEntry(ctx, srcLoc, &st, PathLoc(dst), w.opts.Dereference.Follow(true)))
		return w.rep
	}
	w.dir(ctx, nil, srcLoc, &st, PathLoc(dst))
	return w.rep
}

func (w *walk) record(ctx context.Context, o Outcome) {
	w.rep.Record(w.t.c.finish(ctx, o))
}

func (w *walk) fail(ctx context.Context, src, dst string, err error) {
	w.record(ctx, failed(src, dst, err))
}

// dir copies one directory: checks, creation, early metadata, children,
// then the final mode and timestamps. parent is nil for the root.
//
//nolint:gocyclo,funlen // the directory lifecycle is one sequence of steps
func (w *walk) dir(ctx context.Context, parent *dirNode, src Loc, st *unix.Stat_t, dst Loc) {
	id := devIno(st)
	root := parent == nil

	if !root {
		if w.opts.OneFileSystem && id.Dev != parent.id.Dev {
			w.mountPoint(ctx, src, st, dst)
			return
		}
		if id == w.rootDst {
			w.fail(ctx, src.Path, dst.Path, copyerr.New(copyerr.CopyIntoSelf, "copy", src.Path, w.rootPath(parent), nil))
			return
		}
	}
	for a := parent; a != nil; a = a.parent {
		if a.id == id {
			w.fail(ctx, src.Path, dst.Path, copyerr.New(copyerr.SymlinkLoopDetected, "traverse", src.Path, dst.Path, unix.ELOOP))
			return
		}
	}

	follow := w.opts.Dereference == config.DerefAlways || (root && w.opts.Dereference.Follow(true))
	flags := unix.O_RDONLY | unix.O_DIRECTORY
	if !follow {
		flags |= unix.O_NOFOLLOW
	}
	srcF, err := src.open(flags, 0)
	if err != nil {
		w.fail(ctx, src.Path, dst.Path, copyerr.Wrap(copyerr.DataCopyFailed, "open directory", src.Path, dst.Path, err))
		return
	}
	defer srcF.Close()
	if sst, err := fstat(srcF); err != nil || devIno(&sst) != id {
		if err == nil {
			err = errors.New("directory replaced while copying")
		}
		w.fail(ctx, src.Path, dst.Path, copyerr.Wrap(copyerr.DataCopyFailed, "open directory", src.Path, dst.Path, err))
		return
	}

	created, err := w.makeDir(src, st, dst, root)
	if err != nil {
		w.fail(ctx, src.Path, dst.Path, err)
		return
	}

	dflags := unix.O_RDONLY | unix.O_DIRECTORY
	if !root {
		dflags |= unix.O_NOFOLLOW
	}
	dstF, err := dst.open(dflags, 0)
	if err != nil {
		w.fail(ctx, src.Path, dst.Path, copyerr.Wrap(copyerr.DirectoryCreateFailed, "open directory", src.Path, dst.Path, err))
		return
	}
	defer dstF.Close()
	dstSt, err := fstat(dstF)
	if err != nil {
		w.fail(ctx, src.Path, dst.Path, copyerr.Wrap(copyerr.DirectoryCreateFailed, "fstat", src.Path, dst.Path, err))
		return
	}
	if root {
		if devIno(&dstSt) == id {
			w.fail(ctx, src.Path, dst.Path, copyerr.New(copyerr.CopyIntoSelf, "copy", src.Path, dst.Path, nil))
			return
		}
		w.rootDst = devIno(&dstSt)
	}

	msrc := &meta.Source{Path: src.Path, File: srcF, Stat: *st}
	mdst := meta.Target{File: dstF, Dir: dst.Dir, Name: dst.Name, Path: dst.Path}
	early, err := meta.ApplyDirEarly(msrc, mdst, w.opts.Preserve, w.opts)
	out := Outcome{Src: src.Path, Dst: dst.Path, Err: err, Warnings: early.Warnings}
	if created {
		out.Strategy = StrategyDirectory
	}
	w.record(ctx, out)

	node := &dirNode{src: src, dst: dst, srcF: srcF, dstF: dstF, id: id, parent: parent}
	w.children(ctx, node)

	late, err := meta.ApplyDirLate(msrc, mdst, w.opts.Preserve, w.opts, early.Ownership)
	if err == nil && created && !w.opts.Preserve.Has(config.PreserveMode) && perm(st)&0o700 != 0o700 {
		err = meta.Chmod(mdst, perm(st)&0o777&^umask)
	}
	for _, warn := range late.Warnings {
		w.t.c.deps.Logger.Warn("warning", "src", src.Path, "dst", dst.Path, "error", warn)
	}
	if err != nil {
		w.rep.addFailure(Failure{Src: src.Path, Dst: dst.Path,
			Err: copyerr.Wrap(copyerr.MetadataApplyFailed, "chmod", src.Path, dst.Path, err)})
		w.t.c.deps.Stats.AddFilesFailed(1)
	}
}

// makeDir creates dst with owner rwx added so children can be written, or
// accepts an existing directory. It reports whether dst was created.
func (w *walk) makeDir(src Loc, st *unix.Stat_t, dst Loc, root bool) (bool, error) {
	err := dst.mkdir((perm(st) | 0o700) & 0o777)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return false, copyerr.Wrap(copyerr.DirectoryCreateFailed, "mkdir", src.Path, dst.Path, err)
	}

	dstSt, serr := dst.stat(root)
	if serr != nil {
		return false, copyerr.Wrap(copyerr.DirectoryCreateFailed, "stat", src.Path, dst.Path, serr)
	}
	if !isDir(&dstSt) {
		return false, copyerr.New(copyerr.NotADirectory, "cannot overwrite non-directory with directory",
			src.Path, dst.Path, unix.ENOTDIR)
	}
	return false, nil
}

// mountPoint handles a directory on another filesystem under
// one-file-system: the directory itself is created empty and its contents
// are skipped.
func (w *walk) mountPoint(ctx context.Context, src Loc, st *unix.Stat_t, dst Loc) {
	err := dst.mkdir((perm(st) | 0o700) & 0o777)
	if err != nil && !errors.Is(err, unix.EEXIST) {
		w.fail(ctx, src.Path, dst.Path, copyerr.Wrap(copyerr.DirectoryCreateFailed, "mkdir", src.Path, dst.Path, err))
		return
	}
	w.record(ctx, Outcome{
		Src:     src.Path,
		Dst:     dst.Path,
		Skipped: true,
		Err:     copyerr.New(copyerr.CrossDeviceNotAllowed, "skip mount point", src.Path, dst.Path, unix.EXDEV),
	})
}

func (w *walk) rootPath(n *dirNode) string {
	for n.parent != nil {
		n = n.parent
	}
	return n.dst.Path
}

// children copies every entry of n. Large directories on the fast path fan
// out; each child takes a worker when one is free and otherwise runs here.
// All children have finished when children returns.
func (w *walk) children(ctx context.Context, n *dirNode) {
	names, err := n.srcF.Readdirnames(-1)
	if err != nil {
		w.fail(ctx, n.src.Path, n.dst.Path, copyerr.Wrap(copyerr.DataCopyFailed, "read directory", n.src.Path, n.dst.Path, err))
		return
	}
	slices.Sort(names)

	parallel := w.fast && len(names) >= ParallelThreshold
	var wg sync.WaitGroup
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if parallel && w.t.sem.TryAcquire(1) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer w.t.sem.Release(1)
				w.entry(ctx, n, name)
			}()
			continue
		}
		w.entry(ctx, n, name)
	}
	wg.Wait()
}

func (w *walk) childLocs(n *dirNode, name string) (Loc, Loc) {
	if w.fast {
		return n.src.child(n.srcF, name), n.dst.child(n.dstF, name)
	}
	return PathLoc(filepath.Join(n.src.Path, name)), PathLoc(filepath.Join(n.dst.Path, name))
}

func (w *walk) entry(ctx context.Context, n *dirNode, name string) {
	src, dst := w.childLocs(n, name)
	follow := w.opts.Dereference == config.DerefAlways
	st, err := src.stat(follow)
	if err != nil {
		w.fail(ctx, src.Path, dst.Path, copyerr.Wrap(copyerr.SourceNotFound, "stat", src.Path, dst.Path, err))
		return
	}
	if isDir(&st) {
		w.dir(ctx, n, src, &st, dst)
		return
	}
	w.record(ctx, w.t.c.copyEntry(ctx, src, &st, dst, follow))
}

func fstat(f *os.File) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Fstat(int(f.Fd()), &st) //nolint:gosec // G115
	return st, err
}
