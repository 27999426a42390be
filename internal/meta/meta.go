// Package meta carries ownership, permission bits, extended attributes,
// ACLs and timestamps from a source entry to its copy.
package meta

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/copyerr"
)

// SpecialBits are setuid, setgid and sticky.
const SpecialBits = 0o7000

// Source describes the entry attributes are read from.
type Source struct {
	Path string
	// File is an open descriptor for the entry, when one is held.
	File *os.File
	// Dir and Name address the entry relative to an open parent directory.
	Dir     *os.File
	Name    string
	Stat    unix.Stat_t
	Symlink bool
}

// Target describes the entry attributes are applied to. File is preferred
// when set; otherwise calls are made relative to Dir (or the working
// directory when Dir is nil) without following a final symlink.
type Target struct {
	File    *os.File
	Dir     *os.File
	Name    string
	Path    string
	Symlink bool
}

func (t Target) at() (int, string) {
	if t.Dir == nil {
		return unix.AT_FDCWD, t.Path
	}
	return int(t.Dir.Fd()), t.Name //nolint:gosec // G115: fd values are small non-negative integers
}

// Policy decides whether failing to preserve an attribute is an error or
// only a warning. config.Options implements it.
type Policy interface {
	Fails(attr config.Preserve) bool
}

// Result reports what Apply did besides failing.
type Result struct {
	// Ownership is true when owner and group were applied.
	Ownership bool
	// Warnings are best-effort failures that the policy tolerated.
	Warnings []error
}

type applier struct {
	src    *Source
	dst    Target
	set    config.Preserve
	policy Policy
	res    Result
	errs   []error
}

func (a *applier) fail(attr config.Preserve, op string, err error) {
	e := copyerr.New(copyerr.MetadataApplyFailed, op, a.src.Path, a.dst.Path, err)
	if a.policy.Fails(attr) {
		a.errs = append(a.errs, e)
		return
	}
	a.res.Warnings = append(a.res.Warnings, e)
}

func (a *applier) done() (Result, error) {
	return a.res, errors.Join(a.errs...)
}

// Apply copies the attributes in set from src to dst in a fixed order:
// ownership, then mode, then xattrs and ACLs, then timestamps. Mode follows
// ownership because chown clears setuid and setgid; timestamps come last
// because every other change touches ctime and may touch mtime. Special
// bits survive only when ownership was requested and applied.
func Apply(src *Source, dst Target, set config.Preserve, policy Policy) (Result, error) {
	a := &applier{src: src, dst: dst, set: set, policy: policy}
	a.ownership()
	a.mode(false)
	a.xattrs()
	a.times()
	return a.done()
}

// ApplyDirEarly prepares a freshly created directory before its children
// are copied: ownership, xattrs and ACLs are applied, and the mode gets
// owner rwx added so the children can be created.
func ApplyDirEarly(src *Source, dst Target, set config.Preserve, policy Policy) (Result, error) {
	a := &applier{src: src, dst: dst, set: set, policy: policy}
	a.ownership()
	a.mode(true)
	a.xattrs()
	return a.done()
}

// ApplyDirLate finishes a directory after all of its children: the exact
// mode, then timestamps. ownership reports whether the early phase applied
// ownership.
func ApplyDirLate(src *Source, dst Target, set config.Preserve, policy Policy, ownership bool) (Result, error) {
	a := &applier{src: src, dst: dst, set: set, policy: policy}
	a.res.Ownership = ownership
	a.mode(false)
	a.times()
	return a.done()
}

func (a *applier) ownership() {
	if !a.set.Has(config.PreserveOwnership) {
		return
	}
	uid, gid := int(a.src.Stat.Uid), int(a.src.Stat.Gid)
	var err error
	if a.dst.File != nil && !a.dst.Symlink {
		err = unix.Fchown(int(a.dst.File.Fd()), uid, gid) //nolint:gosec // G115
	} else {
		fd, name := a.dst.at()
		err = unix.Fchownat(fd, name, uid, gid, unix.AT_SYMLINK_NOFOLLOW)
	}
	if err != nil {
		a.fail(config.PreserveOwnership, "chown", err)
		return
	}
	a.res.Ownership = true
}

// mode applies permission bits. Symlinks have no mode of their own.
func (a *applier) mode(early bool) {
	if a.dst.Symlink || !a.set.Has(config.PreserveMode) {
		return
	}
	perm := uint32(a.src.Stat.Mode) & 0o7777 //nolint:unconvert // uint16 on darwin
	if !a.res.Ownership || !a.set.Has(config.PreserveOwnership) {
		perm &^= SpecialBits
	}
	if early {
		perm |= 0o700
	}
	if err := Chmod(a.dst, perm); err != nil {
		a.fail(config.PreserveMode, "chmod", err)
	}
}

// Chmod sets the permission bits of dst.
func Chmod(dst Target, perm uint32) error {
	if dst.File != nil {
		return unix.Fchmod(int(dst.File.Fd()), perm) //nolint:gosec // G115
	}
	fd, name := dst.at()
	return unix.Fchmodat(fd, name, perm, 0)
}

func (a *applier) times() {
	if !a.set.Has(config.PreserveTimestamps) {
		return
	}
	ts := []unix.Timespec{atime(&a.src.Stat), mtime(&a.src.Stat)}
	var err error
	if a.dst.File != nil && !a.dst.Symlink {
		err = futimes(a.dst.File, ts)
	} else {
		fd, name := a.dst.at()
		err = unix.UtimesNanoAt(fd, name, ts, unix.AT_SYMLINK_NOFOLLOW)
	}
	if err != nil {
		a.fail(config.PreserveTimestamps, "utimensat", err)
	}
}
