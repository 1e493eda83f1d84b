package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildwrap/internal/classify"
	"git.home.luguber.info/inful/buildwrap/internal/config"
	"git.home.luguber.info/inful/buildwrap/internal/history"
	"git.home.luguber.info/inful/buildwrap/internal/metrics"
	"git.home.luguber.info/inful/buildwrap/internal/report"
	"git.home.luguber.info/inful/buildwrap/internal/runner"
	"git.home.luguber.info/inful/buildwrap/internal/version"
	"git.home.luguber.info/inful/buildwrap/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:".buildwrap.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Args []string `arg:"" optional:"" passthrough:"" help:"Arguments forwarded verbatim to the build command"`
	} `cmd:"" default:"withargs" help:"Run the wrapped build once (default)"`

	Watch struct {
		Args []string `arg:"" optional:"" passthrough:"" help:"Arguments forwarded verbatim to the build command"`
	} `cmd:"" help:"Re-run the build whenever watched paths change"`

	History struct {
		Limit int `short:"n" help:"Maximum number of runs to list" default:"20"`
	} `cmd:"" help:"List recent recorded runs"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	// All wrapper output, logs included, goes to stdout: the tool's only
	// stream is the merged one the child writes to.
	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	command := ctx.Command()
	switch {
	case command == "run" || strings.HasPrefix(command, "run "):
		runOnce(CLI.Run.Args)
	case command == "watch" || strings.HasPrefix(command, "watch "):
		runWatch(CLI.Watch.Args)
	case command == "history":
		if err := runHistory(CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	case command == "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
	case command == "version":
		fmt.Printf("buildwrap %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	}
}

// runOnce executes a single wrapped build and exits with the child's exit
// code. Warnings and errors found in the output never change that code.
func runOnce(args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := executeBuild(ctx, cfg, args, os.Stdout)
	if err != nil {
		slog.Error("Build run failed", "error", err)
		os.Exit(1)
	}
	os.Exit(res.ExitCode)
}

// runWatch loops builds on file changes until interrupted, then exits with
// the last completed run's exit code.
func runWatch(args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(cfg.Watch.Paths, cfg.Watch.Debounce.Std(), cfg.History.Path)
	if err != nil {
		slog.Error("Watch setup failed", "error", err)
		os.Exit(1)
	}

	lastExit := 0
	err = w.Run(ctx, func(runCtx context.Context) error {
		res, runErr := executeBuild(runCtx, cfg, args, os.Stdout)
		if runErr != nil {
			return runErr
		}
		lastExit = res.ExitCode
		return nil
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("Watch failed", "error", err)
		os.Exit(1)
	}
	os.Exit(lastExit)
}

// executeBuild runs the build, renders the recap, and feeds the optional
// history and metrics sinks. Sink failures are logged, never fatal, and
// never alter the propagated exit code.
func executeBuild(ctx context.Context, cfg *config.Config, args []string, out io.Writer) (*report.Result, error) {
	started := time.Now()
	r := runner.New(cfg, out)

	res, err := r.Run(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := report.Render(out, res); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	recordHistory(ctx, cfg, res, started)
	pushMetrics(cfg, res)
	return res, nil
}

func recordHistory(ctx context.Context, cfg *config.Config, res *report.Result, started time.Time) {
	if !cfg.History.RecordingEnabled() {
		return
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		slog.Warn("Failed to open history database", "path", cfg.History.Path, "error", err)
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close history database", "error", err)
		}
	}()
	if err := store.Record(ctx, res, started, cfg.Build.Command); err != nil {
		slog.Warn("Failed to record run", "error", err)
	}
}

func pushMetrics(cfg *config.Config, res *report.Result) {
	if cfg.Metrics.Gateway == "" {
		return
	}
	rec := metrics.NewPushRecorder(cfg.Metrics.Gateway, cfg.Metrics.Job)
	rec.ObserveRunDuration(res.Duration)
	rec.SetExitCode(res.ExitCode)
	for _, cc := range classify.Tally(res.Matches) {
		rec.SetMatchCount(cc.Category, cc.Count)
	}
	switch {
	case res.ExitCode != 0:
		rec.IncRunOutcome(metrics.OutcomeFailed)
	case len(res.Matches) > 0:
		rec.IncRunOutcome(metrics.OutcomeWarnings)
	default:
		rec.IncRunOutcome(metrics.OutcomeSuccess)
	}
	if err := rec.Push(); err != nil {
		slog.Warn("Failed to push metrics", "gateway", cfg.Metrics.Gateway, "error", err)
	}
}

func runHistory(limit int) error {
	cfg := loadConfig()

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history database: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}
	for _, e := range entries {
		status := "OK"
		if e.ExitCode != 0 {
			status = fmt.Sprintf("FAILED (%d)", e.ExitCode)
		}
		fmt.Printf("%s  %-12s %s  %d errors, %d warnings  %s\n",
			e.StartedAt.Format("2006-01-02 15:04:05"),
			status,
			report.FormatDuration(e.Duration),
			e.Errors, e.Warnings,
			e.Command)
	}
	return nil
}

func loadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}
