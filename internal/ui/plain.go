package ui

import (
	"fmt"
	"io"

	"github.com/bamsammich/fcp/internal/event"
	"github.com/bamsammich/fcp/internal/stats"
)

// plainPresenter prints one line per entry in the form
// 'src' -> 'dst', followed by the strategy under --debug.
type plainPresenter struct {
	w     io.Writer
	stats *stats.Collector
	debug bool
	// backups maps a destination to the backup made of it, until the
	// entry's own line is printed.
	backups map[string]string
	summary func(stats.Snapshot) string
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	for ev := range events {
		p.handleEvent(ev)
	}
	return nil
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.BackupCreated:
		p.backups[ev.Src] = ev.Dst
	case event.FileCopied, event.DirCreated, event.HardlinkCreated,
		event.SymlinkCreated, event.SpecialCreated:
		line := fmt.Sprintf("'%s' -> '%s'", ev.Src, ev.Dst)
		if b, ok := p.backups[ev.Dst]; ok {
			line += fmt.Sprintf(" (backup: '%s')", b)
			delete(p.backups, ev.Dst)
		}
		if p.debug {
			line += fmt.Sprintf(" [%s]", ev.Strategy)
		}
		fmt.Fprintln(p.w, line)
	case event.EntrySkipped:
		fmt.Fprintf(p.w, "skipped '%s'\n", ev.Dst)
	case event.VerifyOK:
		if p.debug {
			fmt.Fprintf(p.w, "verified '%s'\n", ev.Dst)
		}
	case event.EntryFailed, event.VerifyFailed:
		// failures are reported from the final report
		delete(p.backups, ev.Dst)
	}
}

func (p *plainPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	snap := p.stats.Snapshot()
	if p.summary != nil {
		return p.summary(snap)
	}
	return CompletionSummary(snap)
}
