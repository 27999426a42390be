package ui

import (
	"fmt"

	"github.com/bamsammich/fcp/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  files 48,917  size 2.1 GiB  avg 641 MB/s  time 3m 17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	icon := "✓"
	if snap.FilesFailed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  files %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.FilesCopied),
		FormatBytes(snap.BytesCopied),
		FormatRate(snap.Throughput()),
		FormatDuration(snap.Elapsed),
	)
	for _, extra := range extras(snap) {
		base += fmt.Sprintf("  %s %s", extra.label, FormatCount(extra.n))
	}
	return base + fmt.Sprintf("  errors %d", snap.FilesFailed)
}

type counter struct {
	label string
	n     int64
}

// extras lists the non-zero secondary counters in display order.
func extras(snap stats.Snapshot) []counter {
	all := []counter{
		{"dirs", snap.DirsCreated},
		{"reflinked", snap.FilesReflinked},
		{"sparse", snap.FilesSparse},
		{"hardlinks", snap.HardlinksCreated},
		{"symlinks", snap.SymlinksCreated},
		{"special", snap.SpecialsCreated},
		{"backups", snap.BackupsCreated},
		{"skipped", snap.FilesSkipped},
		{"verified", snap.FilesVerified},
	}
	var out []counter
	for _, c := range all {
		if c.n > 0 {
			out = append(out, c)
		}
	}
	return out
}
