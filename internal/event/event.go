package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	FileCopied Type = iota + 1
	DirCreated
	HardlinkCreated
	SymlinkCreated
	SpecialCreated
	EntrySkipped
	EntryFailed
	BackupCreated
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	FileCopied:      "FileCopied",
	DirCreated:      "DirCreated",
	HardlinkCreated: "HardlinkCreated",
	SymlinkCreated:  "SymlinkCreated",
	SpecialCreated:  "SpecialCreated",
	EntrySkipped:    "EntrySkipped",
	EntryFailed:     "EntryFailed",
	BackupCreated:   "BackupCreated",
	VerifyOK:        "VerifyOK",
	VerifyFailed:    "VerifyFailed",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event reports one entry handled by the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Src       string
	Dst       string
	// Backup is the path an overwritten destination was moved to.
	Backup   string
	Size     int64
	Strategy string
	Error    error
}
