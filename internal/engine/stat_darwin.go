//go:build darwin

package engine

import "golang.org/x/sys/unix"

// fastPath reports whether the descriptor-relative traversal is available.
const fastPath = false

func devIno(st *unix.Stat_t) DevIno {
	return DevIno{Dev: uint64(st.Dev), Ino: st.Ino} //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
}

func mtimeOf(st *unix.Stat_t) unix.Timespec { return st.Mtimespec }

func rdev(st *unix.Stat_t) int { return int(st.Rdev) }

// Darwin has no *at variants for these, so they go by path.
func mkfifo(dst Loc, perm uint32) error {
	return unix.Mkfifo(dst.Path, perm)
}

func mknod(dst Loc, mode uint32, dev int) error {
	return unix.Mknod(dst.Path, mode, dev)
}
