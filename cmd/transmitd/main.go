package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/radioops/transmitd/internal/config"
	"github.com/radioops/transmitd/internal/daemon"
	"github.com/radioops/transmitd/internal/logfields"
	"github.com/radioops/transmitd/internal/schedule"
	"github.com/radioops/transmitd/internal/version"
)

// shutdownGrace bounds the unwind after a termination signal: PTT
// release, rig close, store flush.
const shutdownGrace = 15 * time.Second

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Daemon struct {
	} `cmd:"" help:"Run the transmission daemon"`

	Validate struct {
	} `cmd:"" help:"Validate the configuration and transmission schedules, then exit"`

	Init struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`

	Version struct {
	} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "daemon":
		err = runDaemon(logger)
	case "validate":
		err = runValidate(logger)
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "version":
		fmt.Printf("transmitd %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
	}
	if err != nil {
		logger.Error("command failed", logfields.Error(err))
		os.Exit(1)
	}
}

func runDaemon(logger *slog.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		stop()
	}

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownGrace):
		return fmt.Errorf("daemon did not stop within %s", shutdownGrace)
	}
}

// runValidate performs the startup-fatal checks without touching
// hardware: configuration invariants plus a full schedule parse.
func runValidate(logger *slog.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	caps, err := cfg.RigCapabilities()
	if err != nil {
		return err
	}

	sched, result, err := schedule.Load(cfg.TransmissionSetsPath, caps)
	if err != nil {
		return err
	}

	for _, rowErr := range result.RowErrors {
		logger.Warn("schedule row rejected",
			slog.Int("line", rowErr.Line), logfields.Error(rowErr.Err))
	}
	for _, skipped := range result.SkippedSets {
		logger.Warn("transmission set skipped",
			logfields.Set(skipped.Set), logfields.Error(skipped.Err))
	}

	logger.Info("configuration valid",
		slog.Int("sets", len(sched.Sets)),
		slog.Int("windows", sched.WindowCount()),
		slog.Int("rejected_rows", len(result.RowErrors)))
	return nil
}
