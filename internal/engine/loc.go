package engine

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Loc names a filesystem entry either relative to an open parent directory
// (Dir and Name) or by path alone when Dir is nil. Path is always set and
// is what messages show.
type Loc struct {
	Dir  *os.File
	Name string
	Path string
}

// PathLoc returns a Loc addressed by path alone.
func PathLoc(path string) Loc {
	return Loc{Name: filepath.Base(path), Path: path}
}

func (l Loc) at() (int, string) {
	if l.Dir == nil {
		return unix.AT_FDCWD, l.Path
	}
	return int(l.Dir.Fd()), l.Name //nolint:gosec // G115: fd values are small non-negative integers
}

func (l Loc) child(dir *os.File, name string) Loc {
	return Loc{Dir: dir, Name: name, Path: filepath.Join(l.Path, name)}
}

func (l Loc) stat(follow bool) (unix.Stat_t, error) {
	var st unix.Stat_t
	fd, name := l.at()
	flags := unix.AT_SYMLINK_NOFOLLOW
	if follow {
		flags = 0
	}
	err := unix.Fstatat(fd, name, &st, flags)
	return st, err
}

func (l Loc) open(flags int, perm uint32) (*os.File, error) {
	fd, name := l.at()
	nfd, err := unix.Openat(fd, name, flags|unix.O_CLOEXEC, perm)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(nfd), l.Path), nil //nolint:gosec // G115
}

func (l Loc) unlink() error {
	fd, name := l.at()
	return unix.Unlinkat(fd, name, 0)
}

func (l Loc) mkdir(perm uint32) error {
	fd, name := l.at()
	return unix.Mkdirat(fd, name, perm)
}

func (l Loc) readlink() (string, error) {
	fd, name := l.at()
	buf := make([]byte, 256)
	for {
		n, err := unix.Readlinkat(fd, name, buf)
		if err != nil {
			return "", err
		}
		if n < len(buf) {
			return string(buf[:n]), nil
		}
		buf = make([]byte, 2*len(buf))
	}
}

func (l Loc) symlink(target string) error {
	fd, name := l.at()
	return unix.Symlinkat(target, fd, name)
}

// linkFrom creates l as a hard link to the existing entry at src.
func (l Loc) linkFrom(src Loc) error {
	sfd, sname := src.at()
	fd, name := l.at()
	return unix.Linkat(sfd, sname, fd, name, 0)
}

func fileType(st *unix.Stat_t) uint32 {
	return uint32(st.Mode) & unix.S_IFMT //nolint:unconvert // uint16 on darwin
}

func isDir(st *unix.Stat_t) bool { return fileType(st) == unix.S_IFDIR }

func isSymlink(st *unix.Stat_t) bool { return fileType(st) == unix.S_IFLNK }

func perm(st *unix.Stat_t) uint32 {
	return uint32(st.Mode) & 0o7777 //nolint:unconvert // uint16 on darwin
}

// newer reports whether a is strictly later than b.
func newer(a, b unix.Timespec) bool {
	if a.Sec != b.Sec {
		return a.Sec > b.Sec
	}
	return a.Nsec > b.Nsec
}
