package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/facron/facron/internal/command"
	"github.com/facron/facron/internal/conf"
	"github.com/facron/facron/internal/config"
	"github.com/facron/facron/internal/daemon"
	"github.com/facron/facron/internal/dispatch"
	"github.com/facron/facron/internal/history"
	"github.com/facron/facron/internal/metrics"
	"github.com/facron/facron/internal/pidfile"
	"github.com/facron/facron/internal/status"
	"github.com/facron/facron/internal/watch"
)

type options struct {
	confPath     string
	confSet      bool
	daemon       bool
	settingsPath string
	logLevel     string
	levelSet     bool
}

// loadSettings reads the settings file, if any, and applies command-line
// overrides on top of it.
func loadSettings(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.settingsPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.settingsPath); err != nil {
			return nil, err
		}
	}
	if opts.confSet {
		cfg.ConfPath = opts.confPath
	}
	if opts.levelSet {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// exitStatus maps the signal that stopped the daemon to the conventional
// 128+n status. A nil signal is a clean stop.
func exitStatus(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 0
}

// run wires every component and blocks until the daemon stops. It returns
// the process exit status.
func run(ctx context.Context, opts options) int {
	cfg, err := loadSettings(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "facron: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("settings loaded",
		slog.String("settings_path", opts.settingsPath),
		slog.String("conf_path", cfg.ConfPath),
		slog.String("backend", cfg.Backend),
		slog.String("status_addr", cfg.StatusAddr),
		slog.String("history_path", cfg.HistoryPath),
	)

	if cfg.PIDFile != "" {
		pf, err := pidfile.Acquire(cfg.PIDFile)
		if err != nil {
			logger.Error("cannot take pid file", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := pf.Release(); err != nil {
				logger.Warn("error releasing pid file", slog.Any("error", err))
			}
		}()
	}

	backend, err := watch.New(cfg.Backend, logger)
	if err != nil {
		logger.Error("cannot initialise watch backend", slog.Any("error", err))
		return 1
	}

	store, err := history.Open(cfg.HistoryPath, cfg.HistoryLimit)
	if err != nil {
		_ = backend.Close()
		logger.Error("cannot open launch history", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("error closing launch history", slog.Any("error", err))
		}
	}()

	exe, err := os.Executable()
	if err != nil {
		_ = backend.Close()
		logger.Error("cannot resolve own executable", slog.Any("error", err))
		return 1
	}

	m := metrics.New()
	disp := dispatch.New(command.NewDetachedLauncher(exe), &command.Counter{}, logger,
		dispatch.WithMetrics(m), dispatch.WithRecorder(store))
	d := daemon.New(conf.New(cfg.ConfPath, logger), backend, disp, logger, daemon.WithMetrics(m))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stopSig atomic.Value
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					logger.Info("received reload signal")
					d.RequestReload()
					continue
				}
				logger.Info("received shutdown signal", slog.String("signal", sig.String()))
				stopSig.Store(sig)
				cancel()
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A daemon failure must also stop the status server.
		defer cancel()
		return d.Run(gctx)
	})
	if cfg.StatusAddr != "" {
		router := status.NewRouter(status.Deps{
			Health:       d.HealthzHandler,
			Metrics:      m.Handler(),
			History:      store,
			HistoryLimit: cfg.HistoryLimit,
			Logger:       logger,
		})
		srv := status.NewServer(cfg.StatusAddr, router, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("facron stopped with error", slog.Any("error", err))
		return 1
	}

	sig, _ := stopSig.Load().(os.Signal)
	logger.Info("facron exited", slog.Int("status", exitStatus(sig)))
	return exitStatus(sig)
}
