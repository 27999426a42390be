package config

import (
	"fmt"
	"strings"
)

// Preserve is a set of attributes carried from source to destination.
type Preserve uint8

const (
	PreserveMode Preserve = 1 << iota
	PreserveOwnership
	PreserveTimestamps
	PreserveLinks
	PreserveXattr
	PreserveACL

	PreserveNone Preserve = 0
	PreserveAll           = PreserveMode | PreserveOwnership | PreserveTimestamps |
		PreserveLinks | PreserveXattr | PreserveACL
	// PreserveDefault is what -p selects.
	PreserveDefault = PreserveMode | PreserveOwnership | PreserveTimestamps
	// PreserveArchive is what -a implies.
	PreserveArchive = PreserveDefault | PreserveLinks | PreserveXattr
)

var preserveNames = []struct {
	name string
	bit  Preserve
}{
	{"mode", PreserveMode},
	{"ownership", PreserveOwnership},
	{"timestamps", PreserveTimestamps},
	{"links", PreserveLinks},
	{"xattr", PreserveXattr},
	{"acl", PreserveACL},
}

// Has reports whether every bit in q is present in p.
func (p Preserve) Has(q Preserve) bool { return p&q == q && q != 0 }

func (p Preserve) String() string {
	if p == PreserveNone {
		return "none"
	}
	var parts []string
	for _, n := range preserveNames {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParsePreserve parses a comma separated attribute list as accepted by
// --preserve and --no-preserve. "context" is accepted and ignored.
func ParsePreserve(s string) (Preserve, error) {
	var p Preserve
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		switch field {
		case "":
			continue
		case "all":
			p |= PreserveAll
			continue
		case "context":
			continue
		}
		found := false
		for _, n := range preserveNames {
			if n.name == field {
				p |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid attribute %q", field)
		}
	}
	return p, nil
}

// Dereference decides whether symlinks in the source are followed.
type Dereference int

const (
	// DerefCommandLine follows symlinks named on the command line only (-H).
	DerefCommandLine Dereference = iota
	// DerefNever copies symlinks as symlinks (-P).
	DerefNever
	// DerefAlways follows every symlink (-L).
	DerefAlways
)

func (d Dereference) String() string {
	switch d {
	case DerefNever:
		return "never"
	case DerefAlways:
		return "always"
	default:
		return "command-line"
	}
}

// Follow reports whether a symlink should be followed for an entry.
func (d Dereference) Follow(commandLine bool) bool {
	switch d {
	case DerefAlways:
		return true
	case DerefNever:
		return false
	default:
		return commandLine
	}
}

// Mode is the tri-state used by --sparse and --reflink.
type Mode int

const (
	Auto Mode = iota
	Always
	Never
)

func (m Mode) String() string {
	switch m {
	case Always:
		return "always"
	case Never:
		return "never"
	default:
		return "auto"
	}
}

// ParseMode parses "auto", "always" or "never".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return Auto, nil
	case "always":
		return Always, nil
	case "never":
		return Never, nil
	}
	return Auto, fmt.Errorf("invalid mode %q (use auto, always or never)", s)
}

// Update controls replacement of existing destinations.
type Update int

const (
	// UpdateAll always replaces the destination.
	UpdateAll Update = iota
	// UpdateOlder replaces the destination only when it is older than the source.
	UpdateOlder
	// UpdateNone never replaces the destination (same as no-clobber).
	UpdateNone
	// UpdateNoneFail never replaces the destination and reports a failure.
	UpdateNoneFail
)

// ParseUpdate parses the --update argument.
func ParseUpdate(s string) (Update, error) {
	switch s {
	case "all":
		return UpdateAll, nil
	case "older", "":
		return UpdateOlder, nil
	case "none":
		return UpdateNone, nil
	case "none-fail":
		return UpdateNoneFail, nil
	}
	return UpdateAll, fmt.Errorf("invalid update mode %q", s)
}

// LinkMode selects whether regular files are copied or linked.
type LinkMode int

const (
	LinkCopy LinkMode = iota
	LinkHard
	LinkSymbolic
)

// AttrFailurePolicy decides how xattr/ACL preservation failures are reported.
// Ownership and mode failures are always reported.
type AttrFailurePolicy int

const (
	// PolicyRequested reports failures only for attributes in Options.Required.
	PolicyRequested AttrFailurePolicy = iota
	// PolicyStrict reports every failure.
	PolicyStrict
	// PolicyLenient never reports, only warns.
	PolicyLenient
)

// ParseAttrFailurePolicy parses "requested", "strict" or "lenient".
func ParseAttrFailurePolicy(s string) (AttrFailurePolicy, error) {
	switch s {
	case "requested", "":
		return PolicyRequested, nil
	case "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	}
	return PolicyRequested, fmt.Errorf("invalid attribute failure policy %q", s)
}

// Options is the fully resolved configuration for one run. It is built once
// by the CLI and only read afterwards.
type Options struct {
	Preserve Preserve
	// Required holds attributes explicitly requested with --preserve.
	Required Preserve

	Force             bool
	NoClobber         bool
	Update            Update
	RemoveDestination bool

	Dereference Dereference
	Sparse      Mode
	Reflink     Mode
	Link        LinkMode

	Recursive      bool
	OneFileSystem  bool
	AttributesOnly bool

	Backup       BackupControl
	BackupSuffix string

	AttrPolicy AttrFailurePolicy

	Verbose bool
	Debug   bool
	Verify  bool
	Workers int
	BWLimit int64
}

// Simple reports whether no per-entry overwrite decision is needed, which is
// what allows the directory fast path.
func (o Options) Simple() bool {
	return !o.NoClobber &&
		o.Update == UpdateAll &&
		o.Backup == BackupNone &&
		o.Dereference != DerefAlways
}

// Fails reports whether a failure to preserve attr must be reported.
func (o Options) Fails(attr Preserve) bool {
	switch attr {
	case PreserveOwnership, PreserveMode:
		return true
	}
	switch o.AttrPolicy {
	case PolicyStrict:
		return true
	case PolicyLenient:
		return false
	}
	return o.Required&attr != 0
}

// BackupControl selects the backup naming scheme.
type BackupControl int

const (
	BackupNone BackupControl = iota
	BackupSimple
	BackupNumbered
	BackupExisting
)

// ParseBackupControl parses a VERSION_CONTROL style value. Unknown values
// select "existing", the documented default.
func ParseBackupControl(s string) BackupControl {
	switch s {
	case "none", "off":
		return BackupNone
	case "numbered", "t":
		return BackupNumbered
	case "simple", "never":
		return BackupSimple
	}
	return BackupExisting
}
