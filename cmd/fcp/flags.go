package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/bamsammich/fcp/internal/backup"
	"github.com/bamsammich/fcp/internal/config"
)

// backupFromEnv is what a bare -b or --backup stands for: the control named
// by VERSION_CONTROL.
const backupFromEnv = "auto"

// cliFlags holds the raw command line values before they are resolved into
// config.Options.
type cliFlags struct {
	archive           bool
	recursive         bool
	force             bool
	noClobber         bool
	update            string
	removeDestination bool

	noDerefPreserveLinks bool // -d
	derefNever           bool // -P
	derefCommandLine     bool // -H
	derefAlways          bool // -L

	preserve   string
	noPreserve string
	sparse     string
	reflink    string

	oneFileSystem  bool
	attributesOnly bool
	link           bool
	symbolicLink   bool

	backup string
	suffix string

	targetDir   string
	noTargetDir bool

	verbose     bool
	debug       bool
	verify      bool
	workers     int
	bwLimit     string
	logFile     string
	attrPolicy  string
	showVersion bool
}

func (f *cliFlags) register(fs *pflag.FlagSet) {
	fs.BoolVarP(&f.archive, "archive", "a", false, "same as -dR --preserve=all except acl")
	fs.BoolVarP(&f.recursive, "recursive", "r", false, "copy directories recursively")
	fs.BoolVarP(&f.recursive, "recursive-compat", "R", false, "same as --recursive")
	_ = fs.MarkHidden("recursive-compat") //nolint:errcheck // flag name is hardcoded
	fs.BoolVarP(&f.force, "force", "f", false,
		"if an existing destination cannot be opened, remove it and try again")
	fs.BoolVarP(&f.noClobber, "no-clobber", "n", false, "do not overwrite an existing file")
	fs.StringVarP(&f.update, "update", "u", "",
		"replace only when the source is newer (older), or control replacement (all, none, none-fail)")
	fs.Lookup("update").NoOptDefVal = "older"
	fs.BoolVar(&f.removeDestination, "remove-destination", false,
		"remove each existing destination file before opening it")

	fs.BoolVarP(&f.noDerefPreserveLinks, "no-dereference-preserve-links", "d", false,
		"same as --no-dereference --preserve=links")
	fs.BoolVarP(&f.derefNever, "no-dereference", "P", false, "never follow symbolic links in SOURCE")
	fs.BoolVarP(&f.derefCommandLine, "dereference-command-line", "H", false,
		"follow command-line symbolic links in SOURCE")
	fs.BoolVarP(&f.derefAlways, "dereference", "L", false, "always follow symbolic links in SOURCE")

	fs.StringVarP(&f.preserve, "preserve", "p", "",
		"preserve the attributes in LIST (mode,ownership,timestamps,links,xattr,acl,all)")
	fs.Lookup("preserve").NoOptDefVal = "mode,ownership,timestamps"
	fs.StringVar(&f.noPreserve, "no-preserve", "", "don't preserve the attributes in LIST")
	fs.StringVar(&f.sparse, "sparse", "auto", "control creation of sparse files (auto, always, never)")
	fs.StringVar(&f.reflink, "reflink", "auto", "control clone/CoW copies (auto, always, never)")
	fs.Lookup("reflink").NoOptDefVal = "always"

	fs.BoolVarP(&f.oneFileSystem, "one-file-system", "x", false, "stay on this file system")
	fs.BoolVar(&f.attributesOnly, "attributes-only", false, "don't copy file data, just the attributes")
	fs.BoolVarP(&f.link, "link", "l", false, "hard link files instead of copying")
	fs.BoolVarP(&f.symbolicLink, "symbolic-link", "s", false, "make symbolic links instead of copying")

	fs.StringVarP(&f.backup, "backup", "b", "",
		"make a backup of each existing destination file (none, numbered, existing, simple)")
	fs.Lookup("backup").NoOptDefVal = backupFromEnv
	fs.StringVarP(&f.suffix, "suffix", "S", "", "override the usual backup suffix")

	fs.StringVarP(&f.targetDir, "target-directory", "t", "", "copy all SOURCE arguments into DIRECTORY")
	fs.BoolVarP(&f.noTargetDir, "no-target-directory", "T", false, "treat DEST as a normal file")

	fs.BoolVarP(&f.verbose, "verbose", "v", false, "explain what is being done")
	fs.BoolVar(&f.debug, "debug", false, "explain how a file is copied; implies -v")
	fs.BoolVar(&f.verify, "verify", false, "verify checksums after copy (BLAKE3)")
	fs.IntVar(&f.workers, "workers", 0, "number of copy workers (default: min(NumCPU*2, 32))")
	fs.StringVar(&f.bwLimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	fs.StringVar(&f.logFile, "log", "", "write structured JSON log to FILE")
	fs.StringVar(&f.attrPolicy, "attr-failure-policy", "requested",
		"how xattr/acl preservation failures are reported (requested, strict, lenient)")
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
}

// options resolves the parsed flags, with defaults from the config file for
// flags not given on the command line.
//
//nolint:gocyclo,funlen // one branch per cp option
func (f *cliFlags) options(fs *pflag.FlagSet, defaults config.DefaultsConfig) (config.Options, error) {
	var opts config.Options

	if !fs.Changed("archive") && defaults.Archive != nil {
		f.archive = *defaults.Archive
	}
	if f.archive {
		f.recursive = true
		opts.Preserve = config.PreserveArchive
		opts.Dereference = config.DerefNever
	}
	opts.Recursive = f.recursive

	switch {
	case f.derefAlways:
		opts.Dereference = config.DerefAlways
	case f.derefCommandLine:
		opts.Dereference = config.DerefCommandLine
	case f.derefNever || f.noDerefPreserveLinks:
		opts.Dereference = config.DerefNever
	case !f.archive && f.recursive:
		opts.Dereference = config.DerefNever
	}
	if f.noDerefPreserveLinks {
		opts.Preserve |= config.PreserveLinks
	}

	if fs.Changed("preserve") {
		p, err := config.ParsePreserve(f.preserve)
		if err != nil {
			return opts, err
		}
		opts.Preserve |= p
		opts.Required |= p
	}
	if f.noPreserve != "" {
		p, err := config.ParsePreserve(f.noPreserve)
		if err != nil {
			return opts, err
		}
		opts.Preserve &^= p
		opts.Required &^= p
	}

	var err error
	if opts.Sparse, err = config.ParseMode(f.sparse); err != nil {
		return opts, fmt.Errorf("invalid --sparse: %w", err)
	}
	if opts.Reflink, err = config.ParseMode(f.reflink); err != nil {
		return opts, fmt.Errorf("invalid --reflink: %w", err)
	}
	if opts.AttrPolicy, err = config.ParseAttrFailurePolicy(f.attrPolicy); err != nil {
		return opts, err
	}
	if f.bwLimit != "" {
		if opts.BWLimit, err = config.ParseSize(f.bwLimit); err != nil {
			return opts, fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	opts.Force = f.force
	opts.NoClobber = f.noClobber
	opts.RemoveDestination = f.removeDestination
	if fs.Changed("update") {
		if opts.Update, err = config.ParseUpdate(f.update); err != nil {
			return opts, err
		}
	}
	if f.noClobber {
		opts.Update = config.UpdateNone
	}

	switch {
	case f.link && f.symbolicLink:
		return opts, errors.New("cannot make both hard and symbolic links")
	case f.link:
		opts.Link = config.LinkHard
	case f.symbolicLink:
		opts.Link = config.LinkSymbolic
	}

	if fs.Changed("backup") {
		if f.backup == backupFromEnv {
			opts.Backup = backup.ControlFromEnv()
		} else {
			opts.Backup = config.ParseBackupControl(f.backup)
		}
	} else if fs.Changed("suffix") {
		opts.Backup = backup.ControlFromEnv()
	}
	opts.BackupSuffix = f.suffix
	if opts.Backup != config.BackupNone && f.noClobber {
		return opts, errors.New("options --backup and --no-clobber are mutually exclusive")
	}

	opts.OneFileSystem = f.oneFileSystem
	opts.AttributesOnly = f.attributesOnly
	opts.Verbose = f.verbose || f.debug
	opts.Debug = f.debug
	opts.Verify = f.verify
	opts.Workers = f.workers

	if err := defaults.Apply(&opts, fs.Changed); err != nil {
		return opts, fmt.Errorf("config %s: %w", config.Path(), err)
	}
	if opts.Workers <= 0 {
		opts.Workers = min(runtime.NumCPU()*2, 32)
	}
	return opts, nil
}
