// Package copyerr classifies copy failures into a small set of kinds so that
// callers can decide severity without matching on errno values.
package copyerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind is the class of a copy failure.
type Kind int

const (
	Unknown Kind = iota
	SourceNotFound
	PermissionDenied
	SameFileConflict
	SymlinkLoopDetected
	CrossDeviceNotAllowed
	UnsupportedOperation
	DestinationExists
	DataCopyFailed
	MetadataApplyFailed
	DirectoryCreateFailed
	OmitDirectory
	CopyIntoSelf
	NotADirectory
	SpecialFileFailed
)

var kindNames = [...]string{
	Unknown:               "unknown",
	SourceNotFound:        "source-not-found",
	PermissionDenied:      "permission-denied",
	SameFileConflict:      "same-file",
	SymlinkLoopDetected:   "symlink-loop",
	CrossDeviceNotAllowed: "cross-device",
	UnsupportedOperation:  "unsupported",
	DestinationExists:     "destination-exists",
	DataCopyFailed:        "data-copy-failed",
	MetadataApplyFailed:   "metadata-failed",
	DirectoryCreateFailed: "mkdir-failed",
	OmitDirectory:         "omit-directory",
	CopyIntoSelf:          "copy-into-self",
	NotADirectory:         "not-a-directory",
	SpecialFileFailed:     "special-file-failed",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a failure attributable to one source/destination pair.
type Error struct {
	Kind Kind
	Op   string
	Src  string
	Dst  string
	Err  error
}

// Error returns a string representation of Error
func (e *Error) Error() string {
	switch e.Kind {
	case SameFileConflict:
		return fmt.Sprintf("'%s' and '%s' are the same file", e.Src, e.Dst)
	case CopyIntoSelf:
		return fmt.Sprintf("cannot copy a directory, '%s', into itself, '%s'", e.Src, e.Dst)
	case OmitDirectory:
		return fmt.Sprintf("-r not specified; omitting directory '%s'", e.Src)
	}

	msg := e.Op
	switch {
	case e.Src != "" && e.Dst != "":
		msg = fmt.Sprintf("%s '%s' -> '%s'", e.Op, e.Src, e.Dst)
	case e.Src != "":
		msg = fmt.Sprintf("%s '%s'", e.Op, e.Src)
	case e.Dst != "":
		msg = fmt.Sprintf("%s '%s'", e.Op, e.Dst)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

var _ error = &Error{}

// New builds an Error of the given kind.
func New(kind Kind, op, src, dst string, err error) *Error {
	return &Error{Kind: kind, Op: op, Src: src, Dst: dst, Err: err}
}

// Wrap builds an Error whose kind is derived from err. If err already
// carries a kind it is kept; otherwise the errno is classified and
// fallback is used when the errno says nothing specific. A nil err yields nil.
func Wrap(fallback Kind, op, src, dst string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := FromErrno(err)
	if kind == Unknown {
		kind = fallback
	}
	return &Error{Kind: kind, Op: op, Src: src, Dst: dst, Err: err}
}

// KindOf returns the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromErrno maps the errno inside err to a Kind. Errnos that describe data
// or metadata problems map to Unknown so that the caller picks the kind.
func FromErrno(err error) Kind {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return Unknown
	}
	switch errno {
	case syscall.ENOENT:
		return SourceNotFound
	case syscall.EACCES, syscall.EPERM, syscall.EROFS:
		return PermissionDenied
	case syscall.ELOOP:
		return SymlinkLoopDetected
	case syscall.EXDEV:
		return CrossDeviceNotAllowed
	case syscall.ENOSYS, syscall.ENOTSUP, syscall.ENOTTY:
		return UnsupportedOperation
	case syscall.EEXIST:
		return DestinationExists
	case syscall.ENOTDIR:
		return NotADirectory
	}
	return Unknown
}

// IsUnsupported reports whether err says an operation is not implemented
// for the file or filesystem at hand.
func IsUnsupported(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.ENOSYS, syscall.ENOTSUP, syscall.ENOTTY, syscall.EXDEV, syscall.EINVAL, syscall.EBADF:
		return true
	}
	return false
}
