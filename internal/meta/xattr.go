package meta

import (
	"errors"
	"strings"

	"github.com/pkg/xattr"

	"github.com/bamsammich/fcp/internal/config"
)

// POSIX ACLs live in these extended attributes on Linux.
const (
	aclAccess  = "system.posix_acl_access"
	aclDefault = "system.posix_acl_default"
)

func isACL(name string) bool {
	return name == aclAccess || name == aclDefault
}

type xattrSource struct {
	list func() ([]string, error)
	get  func(name string) ([]byte, error)
}

func (a *applier) source() xattrSource {
	if a.src.File != nil && !a.src.Symlink {
		f := a.src.File
		return xattrSource{
			list: func() ([]string, error) { return xattr.FList(f) },
			get:  func(name string) ([]byte, error) { return xattr.FGet(f, name) },
		}
	}
	p := entryPath(a.src.Dir, a.src.Name, a.src.Path)
	return xattrSource{
		list: func() ([]string, error) { return xattr.LList(p) },
		get:  func(name string) ([]byte, error) { return xattr.LGet(p, name) },
	}
}

func (a *applier) setter() func(name string, val []byte) error {
	if a.dst.File != nil && !a.dst.Symlink {
		f := a.dst.File
		return func(name string, val []byte) error { return xattr.FSet(f, name, val) }
	}
	p := entryPath(a.dst.Dir, a.dst.Name, a.dst.Path)
	return func(name string, val []byte) error { return xattr.LSet(p, name, val) }
}

// xattrs copies extended attributes when xattr is in the set and POSIX ACLs
// when acl is. Each attribute is attempted even after an earlier one fails.
func (a *applier) xattrs() {
	wantX := a.set.Has(config.PreserveXattr)
	wantACL := a.set.Has(config.PreserveACL) && !a.src.Symlink
	if !wantX && !wantACL {
		return
	}

	src := a.source()
	names, err := src.list()
	if err != nil {
		if wantX {
			a.fail(config.PreserveXattr, "listxattr", err)
		} else {
			a.fail(config.PreserveACL, "listxattr", err)
		}
		return
	}

	set := a.setter()
	for _, name := range names {
		attr := config.PreserveXattr
		if isACL(name) {
			attr = config.PreserveACL
			if !wantACL {
				continue
			}
		} else if !wantX || skipXattr(name) {
			continue
		}

		val, err := src.get(name)
		if errors.Is(err, xattr.ENOATTR) {
			continue
		}
		if err != nil {
			a.fail(attr, "getxattr "+name, err)
			continue
		}
		if err := set(name, val); err != nil {
			a.fail(attr, "setxattr "+name, err)
		}
	}
}

// skipXattr reports attributes that describe the source inode's security
// context rather than its content.
func skipXattr(name string) bool {
	return strings.HasPrefix(name, "security.selinux")
}
