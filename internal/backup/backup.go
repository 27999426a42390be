// Package backup names the files that existing destinations are moved to
// before they are overwritten.
package backup

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bamsammich/fcp/internal/config"
)

// DefaultSuffix is used for simple backups when no suffix is configured.
const DefaultSuffix = "~"

// Namer picks the backup path for a destination.
type Namer struct {
	Control config.BackupControl
	Suffix  string
}

// New returns a Namer. An empty suffix falls back to SIMPLE_BACKUP_SUFFIX,
// then to DefaultSuffix.
func New(control config.BackupControl, suffix string) Namer {
	if suffix == "" {
		suffix = os.Getenv("SIMPLE_BACKUP_SUFFIX")
	}
	if suffix == "" || strings.Contains(suffix, "/") {
		suffix = DefaultSuffix
	}
	return Namer{Control: control, Suffix: suffix}
}

// ControlFromEnv returns the control named by VERSION_CONTROL, or
// "existing" when it is unset.
func ControlFromEnv() config.BackupControl {
	return config.ParseBackupControl(os.Getenv("VERSION_CONTROL"))
}

// Enabled reports whether destinations are backed up at all.
func (n Namer) Enabled() bool { return n.Control != config.BackupNone }

// Path returns the path dst should be renamed to. It returns "" when
// backups are disabled.
func (n Namer) Path(dst string) (string, error) {
	switch n.Control {
	case config.BackupNone:
		return "", nil
	case config.BackupSimple:
		return dst + n.Suffix, nil
	}

	highest, err := highestNumbered(dst)
	if err != nil {
		return "", err
	}
	if n.Control == config.BackupExisting && highest == 0 {
		return dst + n.Suffix, nil
	}
	return dst + ".~" + strconv.Itoa(highest+1) + "~", nil
}

// Backup renames dst to its backup path and returns that path.
func (n Namer) Backup(dst string) (string, error) {
	to, err := n.Path(dst)
	if err != nil || to == "" {
		return "", err
	}
	if err := os.Rename(dst, to); err != nil {
		return "", err
	}
	return to, nil
}

// highestNumbered returns the largest N among existing "dst.~N~" files.
func highestNumbered(dst string) (int, error) {
	dir, base := filepath.Split(dst)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	prefix := base + ".~"
	highest := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "~") {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix) : len(name)-1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}
