package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/copyerr"
	"github.com/bamsammich/fcp/internal/event"
	"github.com/bamsammich/fcp/internal/stats"
)

func newTestTree(opts config.Options, workers int) *Tree {
	return NewTree(NewCopier(opts, Deps{}), workers)
}

func failureKinds(rep *Report) []copyerr.Kind {
	var kinds []copyerr.Kind
	for _, f := range rep.Failures() {
		kinds = append(kinds, copyerr.KindOf(f.Err))
	}
	return kinds
}

func TestTreeCopy(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	createTestTree(t, src)

	rep := newTestTree(config.Options{Preserve: config.PreserveArchive}, 4).Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	verifyTreeCopy(t, src, dst)
	// three directories, four files and one symlink
	assert.Equal(t, int64(8), rep.Processed())
}

func TestTreeCopy_MergesIntoExisting(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := t.TempDir()
	createTestTree(t, src)
	writeFile(t, filepath.Join(dst, "extra.txt"), "extra")

	rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	verifyTreeCopy(t, src, dst)
	assert.Equal(t, "extra", readFile(t, filepath.Join(dst, "extra.txt")))
}

func TestTreeCopy_ParallelDirectory(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, os.Mkdir(src, 0o755))
	const n = ParallelThreshold * 3
	for i := range n {
		writeFile(t, filepath.Join(src, fmt.Sprintf("f%03d", i)), fmt.Sprintf("content %d", i))
	}

	collector := stats.NewCollector()
	tree := NewTree(NewCopier(config.Options{}, Deps{Stats: collector}), 4)
	rep := tree.Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	assert.Equal(t, int64(n), collector.Snapshot().FilesCopied)
	for i := range n {
		assert.Equal(t, fmt.Sprintf("content %d", i), readFile(t, filepath.Join(dst, fmt.Sprintf("f%03d", i))))
	}
}

func TestTreeCopy_ParallelMatchesSequentialArchive(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.Mkdir(src, 0o755))
	base := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)
	modes := []os.FileMode{0o600, 0o640, 0o644, 0o755}
	for i := range ParallelThreshold + 36 {
		path := filepath.Join(src, fmt.Sprintf("f%03d", i))
		writeFile(t, path, fmt.Sprintf("content %d", i))
		require.NoError(t, os.Chmod(path, modes[i%len(modes)]))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	sub := filepath.Join(src, "sub")
	require.NoError(t, os.Mkdir(sub, 0o750))
	writeFile(t, filepath.Join(sub, "inner"), "inner")
	require.NoError(t, os.Chtimes(sub, base, base))

	archive := config.Options{Preserve: config.PreserveArchive, Dereference: config.DerefNever}
	parallelDst := filepath.Join(t.TempDir(), "dst")
	rep := newTestTree(archive, 8).Copy(context.Background(), src, parallelDst)
	require.True(t, rep.OK(), "failures: %v", rep.Failures())

	// No-clobber on an empty destination changes nothing but forces the
	// sequential per-path walk.
	sequential := archive
	sequential.NoClobber = true
	sequentialDst := filepath.Join(t.TempDir(), "dst")
	rep = newTestTree(sequential, 8).Copy(context.Background(), src, sequentialDst)
	require.True(t, rep.OK(), "failures: %v", rep.Failures())

	require.NoError(t, filepath.WalkDir(src, func(path string, _ os.DirEntry, err error) error {
		require.NoError(t, err)
		rel, err := filepath.Rel(src, path)
		require.NoError(t, err)
		want, err := os.Lstat(path)
		require.NoError(t, err)
		for _, root := range []string{parallelDst, sequentialDst} {
			got, err := os.Lstat(filepath.Join(root, rel))
			require.NoError(t, err, rel)
			assert.Equal(t, want.Mode(), got.Mode(), "%s mode in %s", rel, root)
			assert.True(t, want.ModTime().Equal(got.ModTime()), "%s mtime in %s", rel, root)
			if want.Mode().IsRegular() {
				assert.Equal(t, readFile(t, path), readFile(t, filepath.Join(root, rel)))
			}
		}
		return nil
	}))
}

func TestTreeCopy_NestedParallelDoesNotDeadlock(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	for d := range ParallelThreshold {
		sub := filepath.Join(src, fmt.Sprintf("d%02d", d))
		require.NoError(t, os.MkdirAll(sub, 0o755))
		for f := range ParallelThreshold {
			writeFile(t, filepath.Join(sub, fmt.Sprintf("f%02d", f)), "x")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	rep := newTestTree(config.Options{}, 1).Copy(ctx, src, dst)

	require.NoError(t, ctx.Err())
	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	assert.Equal(t, int64(ParallelThreshold*ParallelThreshold+ParallelThreshold+1), rep.Processed())
}

func TestTreeCopy_Hardlinks(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	createHardlinkTree(t, src)

	collector := stats.NewCollector()
	tree := NewTree(NewCopier(config.Options{Preserve: config.PreserveLinks}, Deps{Stats: collector}), 4)
	rep := tree.Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	orig := inode(t, filepath.Join(dst, "original.txt"))
	assert.Equal(t, orig, inode(t, filepath.Join(dst, "hardlink.txt")))
	assert.Equal(t, orig, inode(t, filepath.Join(dst, "sub", "another.txt")))
	assert.NotEqual(t, orig, inode(t, filepath.Join(dst, "single.txt")))
	assert.Equal(t, int64(2), collector.Snapshot().HardlinksCreated)
}

func TestTreeCopy_HardlinksNotPreserved(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	createHardlinkTree(t, src)

	rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, dst)

	require.True(t, rep.OK())
	assert.NotEqual(t, inode(t, filepath.Join(dst, "original.txt")), inode(t, filepath.Join(dst, "hardlink.txt")))
}

func TestTreeCopy_IntoItself(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	createTestTree(t, src)

	rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, filepath.Join(src, "inner"))

	assert.Contains(t, failureKinds(rep), copyerr.CopyIntoSelf)
	assert.NoDirExists(t, filepath.Join(src, "inner", "inner"))
	assert.FileExists(t, filepath.Join(src, "inner", "root.txt"))
}

func TestTreeCopy_OntoItself(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	createTestTree(t, src)

	rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, src)

	assert.Equal(t, []copyerr.Kind{copyerr.CopyIntoSelf}, failureKinds(rep))
}

func TestTreeCopy_SymlinkLoop(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a"), 0o755))
	require.NoError(t, os.Symlink("..", filepath.Join(src, "a", "up")))

	t.Run("followed links are detected", func(t *testing.T) {
		rep := newTestTree(config.Options{Dereference: config.DerefAlways}, 2).Copy(context.Background(), src, dst)
		assert.Contains(t, failureKinds(rep), copyerr.SymlinkLoopDetected)
	})

	t.Run("links are copied as links by default", func(t *testing.T) {
		out := dst + "-nod"
		rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, out)
		require.True(t, rep.OK(), "failures: %v", rep.Failures())
		target, err := os.Readlink(filepath.Join(out, "a", "up"))
		require.NoError(t, err)
		assert.Equal(t, "..", target)
	})
}

func TestTreeCopy_DirectoryMetadataAfterChildren(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	sub := filepath.Join(src, "ro")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, filepath.Join(sub, "file"), "inside")
	mtime := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(sub, mtime, mtime))
	require.NoError(t, os.Chmod(sub, 0o555))
	t.Cleanup(func() {
		_ = os.Chmod(sub, 0o755)
		_ = os.Chmod(filepath.Join(dst, "ro"), 0o755)
	})

	rep := newTestTree(config.Options{Preserve: config.PreserveMode | config.PreserveTimestamps}, 2).
		Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	assert.Equal(t, "inside", readFile(t, filepath.Join(dst, "ro", "file")))
	info, err := os.Stat(filepath.Join(dst, "ro"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o555), info.Mode().Perm())
	assert.True(t, mtime.Equal(info.ModTime()), "mtime %v, want %v", info.ModTime(), mtime)
}

func TestTreeCopy_DirectoryModeWithoutPreserve(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	sub := filepath.Join(src, "locked")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, filepath.Join(sub, "file"), "inside")
	require.NoError(t, os.Chmod(sub, 0o500))
	t.Cleanup(func() {
		_ = os.Chmod(sub, 0o755)
		_ = os.Chmod(filepath.Join(dst, "locked"), 0o755)
	})

	rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	assert.Equal(t, "inside", readFile(t, filepath.Join(dst, "locked", "file")))
	info, err := os.Stat(filepath.Join(dst, "locked"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o500&^umask), info.Mode().Perm())
}

func TestTreeCopy_NonDirectoryInTheWay(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := t.TempDir()
	createTestTree(t, src)
	writeFile(t, filepath.Join(dst, "sub"), "not a directory")

	rep := newTestTree(config.Options{}, 2).Copy(context.Background(), src, dst)

	assert.Equal(t, []copyerr.Kind{copyerr.NotADirectory}, failureKinds(rep))
	assert.Equal(t, "root file content", readFile(t, filepath.Join(dst, "root.txt")))
}

func TestTreeCopy_SlowPathNoClobber(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := t.TempDir()
	createTestTree(t, src)
	writeFile(t, filepath.Join(dst, "root.txt"), "keep me")

	opts := config.Options{NoClobber: true}
	require.False(t, opts.Simple())
	rep := newTestTree(opts, 2).Copy(context.Background(), src, dst)

	require.True(t, rep.OK(), "failures: %v", rep.Failures())
	assert.Equal(t, int64(1), rep.Skipped())
	assert.Equal(t, "keep me", readFile(t, filepath.Join(dst, "root.txt")))
	assert.Equal(t, "leaf file content", readFile(t, filepath.Join(dst, "sub", "deep", "leaf.txt")))
}

func TestTreeCopy_Events(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	createTestTree(t, src)

	events, collected := collectEvents(t)
	tree := NewTree(NewCopier(config.Options{}, Deps{Events: events}), 2)
	rep := tree.Copy(context.Background(), src, dst)
	require.True(t, rep.OK())

	evs := collected()
	types := eventTypes(evs)
	assert.Equal(t, 3, types[event.DirCreated])
	assert.Equal(t, 4, types[event.FileCopied])
	assert.Equal(t, 1, types[event.SymlinkCreated])

	// a directory is announced before anything inside it
	seen := map[string]bool{}
	for _, ev := range evs {
		if ev.Type == event.DirCreated {
			seen[ev.Dst] = true
			continue
		}
		assert.True(t, seen[filepath.Dir(ev.Dst)], "%s reported before its directory", ev.Dst)
	}
}

func TestWalkMountPoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "mnt")
	dst := filepath.Join(dir, "copy")
	require.NoError(t, os.Mkdir(src, 0o755))
	writeFile(t, filepath.Join(src, "inside"), "x")
	st, err := PathLoc(src).stat(false)
	require.NoError(t, err)

	tree := newTestTree(config.Options{OneFileSystem: true}, 1)
	w := &walk{t: tree, rep: &Report{}, opts: tree.c.opts}
	w.mountPoint(context.Background(), PathLoc(src), &st, PathLoc(dst))

	assert.True(t, w.rep.OK())
	assert.Equal(t, int64(1), w.rep.Skipped())
	assert.DirExists(t, dst)
	assert.NoFileExists(t, filepath.Join(dst, "inside"))
}

func TestTreeCopy_Cancelled(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "src")
	dst := filepath.Join(t.TempDir(), "dst")
	createTestTree(t, src)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := newTestTree(config.Options{}, 2).Copy(ctx, src, dst)

	assert.NoFileExists(t, filepath.Join(dst, "sub", "deep", "leaf.txt"))
	assert.LessOrEqual(t, rep.Processed(), int64(1))
}
