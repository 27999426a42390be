//go:build linux

package engine

import "golang.org/x/sys/unix"

// fastPath reports whether the descriptor-relative traversal is available.
const fastPath = true

func devIno(st *unix.Stat_t) DevIno {
	return DevIno{Dev: st.Dev, Ino: st.Ino}
}

func mtimeOf(st *unix.Stat_t) unix.Timespec { return st.Mtim }

func rdev(st *unix.Stat_t) int { return int(st.Rdev) } //nolint:gosec // G115

func mkfifo(dst Loc, perm uint32) error {
	fd, name := dst.at()
	return unix.Mkfifoat(fd, name, perm)
}

func mknod(dst Loc, mode uint32, dev int) error {
	fd, name := dst.at()
	return unix.Mknodat(fd, name, mode, dev)
}
