package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"faultfs/internal/config"
	"faultfs/internal/fs"
	"faultfs/internal/logging"
	"faultfs/internal/metrics"
	"faultfs/internal/report"
	"faultfs/internal/transport"

	"golang.org/x/sync/errgroup"
)

var (
	logger = logging.GetLogger()
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			fmt.Fprintln(os.Stderr, "usage: faultfs [flags] <target> <mountpoint>")
			os.Exit(0)
		}
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.Error("Invalid log level: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(level)

	if err := run(cfg); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	logger.Info("Clean shutdown complete")
}

func run(cfg *config.Config) error {
	logger.Info("Starting faultfs...")
	logger.Debug("Target: %s", cfg.Target)
	logger.Debug("Mount point: %s", cfg.Mountpoint)

	cleanMount := filepath.Clean(cfg.Mountpoint)
	cleanTarget := filepath.Clean(cfg.Target)

	m := metrics.New()
	recorder := fs.FaultRecorder(m)

	var journal *report.Journal
	if cfg.Report.Path != "" {
		var err error
		journal, err = report.NewJournal(cfg.Report.Path, cleanTarget)
		if err != nil {
			return fmt.Errorf("failed to create fault journal: %w", err)
		}
		recorder = fs.Recorders(m, journal)
	}

	if cfg.Fault.Seed != 0 {
		logger.Info("Fault coin seeded with %d", cfg.Fault.Seed)
	}
	faultFS, err := fs.New(cleanTarget, fs.Options{
		Coin:              fs.NewRandomCoin(cfg.Fault.Seed),
		Recorder:          recorder,
		FaultLogPerSecond: cfg.Fault.LogPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to create filesystem: %w", err)
	}
	defer faultFS.Close()

	c, err := transport.Mount(cleanMount, transport.MountOptions{AllowOther: cfg.AllowOther})
	if err != nil {
		return err
	}
	defer c.Close()

	// The previous report is only rotated once the mount is known to work.
	if journal != nil {
		if err := journal.Open(); err != nil {
			if uerr := transport.Unmount(cleanMount); uerr != nil {
				logger.Warn("Failed to unmount %s: %v", cleanMount, uerr)
			}
			return fmt.Errorf("failed to open fault journal: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, serveDone := context.WithCancel(gctx)
	served := make(chan struct{})

	g.Go(func() error {
		defer close(served)
		defer serveDone()
		server := transport.NewServer(c, faultFS, m)
		if err := server.Serve(); err != nil {
			return fmt.Errorf("FUSE server error: %w", err)
		}
		logger.Debug("FUSE server stopped")
		return nil
	})

	if cfg.Metrics.Listen != "" {
		metricsServer := metrics.NewServer(cfg.Metrics.Listen, m.Registry())
		g.Go(func() error {
			return metricsServer.Start(serveCtx)
		})
	}

	if journal != nil {
		g.Go(func() error {
			return journal.Run(serveCtx, cfg.Report.Interval)
		})
	}

	// The request loop only returns once the kernel lets go of the mount,
	// so a signal or a failed sibling turns into an unmount.
	g.Go(func() error {
		select {
		case <-served:
			return nil
		case <-gctx.Done():
		}
		if ctx.Err() != nil {
			logger.Info("Received shutdown signal")
		}
		if err := transport.Unmount(cleanMount); err != nil {
			return fmt.Errorf("unmount error: %w", err)
		}
		return nil
	})

	logger.Info("Filesystem mounted and ready")
	return g.Wait()
}
