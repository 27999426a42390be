// Package engine copies files and directory trees: it decides per entry
// how to reproduce it at the destination, walks directories, and collects
// the outcome of every entry into a Report.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/copyerr"
	"github.com/bamsammich/fcp/internal/event"
	"github.com/bamsammich/fcp/internal/stats"
)

// Pair is one source operand and the exact destination path it is copied to.
type Pair struct {
	Src string
	Dst string
}

// Config describes a copy operation.
type Config struct {
	Options config.Options
	Pairs   []Pair
	Events  chan<- event.Event
	Stats   *stats.Collector
	Logger  *slog.Logger
	Backup  Backuper
	// Limiter overrides the limiter built from Options.BWLimit.
	Limiter *rate.Limiter
}

// Result is the outcome of a copy operation.
type Result struct {
	RunID  string
	Report *Report
	Stats  stats.Snapshot
	Err    error
}

// Run copies every pair in order, blocking until complete. A failing entry
// never stops the others; Err is set when any entry failed or ctx ended.
func Run(ctx context.Context, cfg Config) Result {
	runID := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", runID)

	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	limiter := cfg.Limiter
	if limiter == nil && cfg.Options.BWLimit > 0 {
		limiter = NewBWLimiter(cfg.Options.BWLimit)
	}

	c := NewCopier(cfg.Options, Deps{
		Links:   NewHardlinkTable(),
		Backup:  cfg.Backup,
		Limiter: limiter,
		Stats:   collector,
		Events:  cfg.Events,
		Logger:  logger,
	})
	tree := NewTree(c, cfg.Options.Workers)

	logger.Debug("run started", "pairs", len(cfg.Pairs), "workers", cfg.Options.Workers,
		"reflink", cfg.Options.Reflink.String(), "sparse", cfg.Options.Sparse.String(),
		"preserve", cfg.Options.Preserve.String())

	rep := &Report{}
	for _, p := range cfg.Pairs {
		if ctx.Err() != nil {
			break
		}
		copyOperand(ctx, c, tree, p, rep)
	}

	res := Result{RunID: runID, Report: rep, Stats: collector.Snapshot()}
	switch failures := rep.Failures(); {
	case ctx.Err() != nil:
		res.Err = ctx.Err()
	case len(failures) == 1:
		res.Err = failures[0]
	case len(failures) > 1:
		res.Err = fmt.Errorf("%w (and %d more errors)", failures[0], len(failures)-1)
	}
	logger.Debug("run finished", "processed", rep.Processed(), "failed", len(rep.Failures()),
		"elapsed", res.Stats.Elapsed)
	return res
}

// copyOperand copies one command line operand: directories go to the tree
// walker, everything else straight to the copier.
func copyOperand(ctx context.Context, c *Copier, tree *Tree, p Pair, rep *Report) {
	follow := c.opts.Dereference.Follow(true)
	src := PathLoc(p.Src)
	st, err := src.stat(follow)
	if err != nil {
		rep.Record(c.finish(ctx, failed(p.Src, p.Dst,
			copyerr.Wrap(copyerr.SourceNotFound, "stat", p.Src, p.Dst, err))))
		return
	}
	if !isDir(&st) {
		rep.Record(c.finish(ctx, c.copyEntry(ctx, src, &st, PathLoc(p.Dst), follow)))
		return
	}
	if !c.opts.Recursive {
		rep.Record(c.finish(ctx, failed(p.Src, p.Dst,
			copyerr.New(copyerr.OmitDirectory, "copy", p.Src, p.Dst, nil))))
		return
	}
	rep.Merge(tree.Copy(ctx, p.Src, p.Dst))
}
