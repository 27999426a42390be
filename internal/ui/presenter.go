// Package ui renders engine events and the completion summary for the
// command line.
package ui

import (
	"io"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/event"
	"github.com/bamsammich/fcp/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary, or "" when none is shown.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer  io.Writer
	Stats   *stats.Collector
	Theme   config.ThemeConfig
	IsTTY   bool
	Verbose bool
	Debug   bool
}

// NewPresenter creates the appropriate presenter based on configuration.
// Without --verbose or --debug nothing is printed for successful entries.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if !cfg.Verbose && !cfg.Debug {
		return &quietPresenter{}
	}
	p := &plainPresenter{
		w:       cfg.Writer,
		stats:   cfg.Stats,
		debug:   cfg.Debug,
		backups: make(map[string]string),
	}
	if cfg.IsTTY {
		p.summary = NewSummaryStyle(cfg.Theme).Render
	}
	return p
}
