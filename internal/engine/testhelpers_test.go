package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/fcp/internal/event"
)

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          → root.txt (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	writeFile(t, filepath.Join(root, "root.txt"), "root file content")
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "big.bin"),
		bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000),
		0o644,
	))
	writeFile(t, filepath.Join(root, "sub", "mid.txt"), "middle file content")
	writeFile(t, filepath.Join(root, "sub", "deep", "leaf.txt"), "leaf file content")
	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

// verifyTreeCopy checks that dstRoot contains an exact copy of the test tree
// created by createTestTree under srcRoot.
func verifyTreeCopy(t *testing.T, srcRoot, dstRoot string) {
	t.Helper()

	files := []string{
		"root.txt",
		"big.bin",
		filepath.Join("sub", "mid.txt"),
		filepath.Join("sub", "deep", "leaf.txt"),
	}
	for _, rel := range files {
		srcData, err := os.ReadFile(filepath.Join(srcRoot, rel))
		require.NoError(t, err, "read src %s", rel)
		dstData, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err, "read dst %s", rel)
		require.Equal(t, srcData, dstData, "content mismatch: %s", rel)
	}

	for _, dir := range []string{"sub", filepath.Join("sub", "deep")} {
		info, err := os.Stat(filepath.Join(dstRoot, dir))
		require.NoError(t, err, "stat dir %s", dir)
		require.True(t, info.IsDir(), "%s should be a directory", dir)
	}

	target, err := os.Readlink(filepath.Join(dstRoot, "link.txt"))
	require.NoError(t, err, "readlink link.txt")
	require.Equal(t, "root.txt", target)
}

// createHardlinkTree creates a tree with hard-linked files:
//
//	original.txt     (21 bytes)
//	hardlink.txt     → hardlink to original.txt
//	sub/another.txt  → hardlink to original.txt
//	single.txt       (6 bytes)
func createHardlinkTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	writeFile(t, filepath.Join(root, "original.txt"), "original file content")
	require.NoError(t, os.Link(filepath.Join(root, "original.txt"), filepath.Join(root, "hardlink.txt")))
	require.NoError(t, os.Link(filepath.Join(root, "original.txt"), filepath.Join(root, "sub", "another.txt")))
	writeFile(t, filepath.Join(root, "single.txt"), "single")
}

// createSparseFile creates a file at path with two data regions separated by a
// hole. Layout: [dataSize bytes of 'A'] [holeSize gap] [dataSize bytes of 'B'].
// Returns the apparent file size (2*dataSize + holeSize).
//
// If the filesystem does not support sparse files (e.g. tmpfs), the file is
// still created but without holes; callers should handle this.
func createSparseFile(t *testing.T, path string, dataSize, holeSize int64) int64 {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(bytes.Repeat([]byte("A"), int(dataSize)))
	require.NoError(t, err)
	_, err = f.Seek(dataSize+holeSize, 0)
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte("B"), int(dataSize)))
	require.NoError(t, err)

	return 2*dataSize + holeSize
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func inode(t *testing.T, path string) DevIno {
	t.Helper()
	st, err := PathLoc(path).stat(false)
	require.NoError(t, err)
	return devIno(&st)
}

// collectEvents creates a buffered event channel that records all events.
// The getter closes the channel and waits for the drain goroutine, so it is
// safe to read the slice. It may be called at most once. If the getter is
// never called, t.Cleanup closes the channel on test exit.
func collectEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	var collected []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			collected = append(collected, ev)
		}
	}()
	var once sync.Once
	drain := func() {
		once.Do(func() { close(ch) })
		<-done
	}
	t.Cleanup(drain)
	return ch, func() []event.Event {
		drain()
		return collected
	}
}

func eventTypes(events []event.Event) map[event.Type]int {
	types := make(map[event.Type]int)
	for _, ev := range events {
		types[ev.Type]++
	}
	return types
}
