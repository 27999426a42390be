package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/fcp/internal/backup"
	"github.com/bamsammich/fcp/internal/config"
	"github.com/bamsammich/fcp/internal/engine"
	"github.com/bamsammich/fcp/internal/event"
	"github.com/bamsammich/fcp/internal/stats"
	"github.com/bamsammich/fcp/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f cliFlags

	rootCmd := &cobra.Command{
		Use:   "fcp [flags] SOURCE... DEST",
		Short: "Copy files and directories, fast",
		Long: "fcp copies SOURCE to DEST, or multiple SOURCEs into DIRECTORY, using\n" +
			"reflinks, copy_file_range and sendfile where the kernel allows, and\n" +
			"parallel directory traversal for large trees.",
		Args: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				return nil
			}
			if f.targetDir != "" {
				return cobra.MinimumNArgs(1)(cmd, args)
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				fmt.Fprintf(stdout, "fcp %s\n", version)
				return nil
			}
			return copyMain(cmd, &f, args, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	f.register(rootCmd.Flags())
	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "fcp: %v\n", err)
		return 1
	}
	return 0
}

//nolint:funlen // CLI orchestration: config, logging, presenter, engine
func copyMain(cmd *cobra.Command, f *cliFlags, args []string, stdout, stderr io.Writer) error {
	// Load optional config file.
	cfg, cfgErr := config.Load()

	opts, err := f.options(cmd.Flags(), cfg.Defaults)
	if err != nil {
		return err
	}
	pairs, err := resolveTargets(args, f.targetDir, f.noTargetDir)
	if err != nil {
		return err
	}

	// Configure logging.
	logLevel := slog.LevelWarn
	if opts.Debug {
		logLevel = slog.LevelDebug
	} else if opts.Verbose {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel})
	var logHandler slog.Handler = textHandler
	if f.logFile != "" {
		lf, lfErr := os.Create(f.logFile)
		if lfErr != nil {
			return fmt.Errorf("open log file: %w", lfErr)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
	if cfgErr != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", cfgErr)
	}

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	// When --log is set, tee events through a logging goroutine that
	// writes structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if f.logFile != "" {
		presenterEvents = teeEvents(events, logger)
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:  stdout,
		Stats:   collector,
		Theme:   cfg.Theme,
		IsTTY:   ui.IsTTY(os.Stdout.Fd()),
		Verbose: opts.Verbose,
		Debug:   opts.Debug,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	slog.Debug("starting copy",
		"pairs", len(pairs),
		"workers", opts.Workers,
		"recursive", opts.Recursive,
		"preserve", opts.Preserve.String(),
		"dereference", opts.Dereference.String(),
	)

	result := engine.Run(ctx, engine.Config{
		Options: opts,
		Pairs:   pairs,
		Events:  events,
		Stats:   collector,
		Logger:  logger,
		Backup:  backup.New(opts.Backup, opts.BackupSuffix),
	})
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(stderr, "presenter: %v\n", presenterErr)
	}

	for _, failure := range result.Report.Failures() {
		fmt.Fprintf(stderr, "fcp: %v\n", failure)
	}
	if errors.Is(result.Err, context.Canceled) {
		fmt.Fprintln(stderr, "fcp: interrupted")
	}
	if summary := presenter.Summary(); summary != "" {
		fmt.Fprintln(stderr, summary)
	}

	if result.Err != nil {
		slog.Debug("copy failed", "run", result.RunID, "error", result.Err)
		return &exitError{code: 1}
	}
	return nil
}

// teeEvents logs every event at Debug and forwards it.
func teeEvents(in <-chan event.Event, logger *slog.Logger) <-chan event.Event {
	out := make(chan event.Event, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("src", ev.Src),
				slog.String("dst", ev.Dst),
				slog.Int64("size", ev.Size),
			}
			if ev.Strategy != "" {
				attrs = append(attrs, slog.String("strategy", ev.Strategy))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			logger.LogAttrs(context.Background(), slog.LevelDebug, "fcp.event", attrs...)
			out <- ev
		}
	}()
	return out
}
