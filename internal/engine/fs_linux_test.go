//go:build linux

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// remapsOnCopy reports whether copy_file_range on dir's filesystem may share
// extents instead of writing data.
func remapsOnCopy(t *testing.T, dir string) bool {
	t.Helper()
	var fs unix.Statfs_t
	require.NoError(t, unix.Statfs(dir, &fs))
	switch int64(fs.Type) {
	case unix.BTRFS_SUPER_MAGIC, unix.XFS_SUPER_MAGIC:
		return true
	}
	return false
}
