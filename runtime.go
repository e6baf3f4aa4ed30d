package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zsprackett/quota-tray/internal/applog"
	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/db"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/glmapi"
	"github.com/zsprackett/quota-tray/internal/history"
	"github.com/zsprackett/quota-tray/internal/metrics"
	"github.com/zsprackett/quota-tray/internal/notify"
	"github.com/zsprackett/quota-tray/internal/scheduler"
	"github.com/zsprackett/quota-tray/internal/state"
	"github.com/zsprackett/quota-tray/internal/webserver"
)

// runtime owns every long-lived component shared by the TUI and serve modes.
type runtime struct {
	logger   *slog.Logger
	logFile  *applog.DailyRotator
	store    *config.Store
	db       *db.DB
	hub      *events.Hub
	state    *state.State
	client   *glmapi.Client
	sched    *scheduler.Scheduler
	history  *history.Recorder
	notifier *notify.Notifier
	metrics  *metrics.Recorder
	web      *webserver.Server
}

func openDB() (*db.DB, error) {
	dbPath := config.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func newConsoleLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: applog.EffectiveLevel(level)}))
}

// newRuntime loads the config, sets up logging and builds the component
// graph. console, when non-nil, also receives log output.
func newRuntime(console io.Writer) (*runtime, error) {
	rt := &runtime{store: config.NewStore(config.DefaultPath())}

	cfg, err := rt.store.Load()
	switch {
	case errors.Is(err, config.ErrNotFound):
		// First run: defaults until the user saves settings.
	case err != nil:
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}

	logger, logFile, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
		Console:  console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		logger = newConsoleLogger(cfg.LogLevel)
	} else {
		rt.logFile = logFile
	}
	rt.logger = logger

	if cfg.Webserver.Enabled {
		if err := config.EnsureJWTSecret(rt.store.Path(), &cfg); err != nil {
			logger.Warn("could not persist JWT secret", "err", err)
		}
	}

	rt.db, err = openDB()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(reg)

	rt.history = history.New(rt.db, cfg.HistoryLimit, logger)
	rt.notifier = notify.New(cfg.Notifications, logger)
	rt.client = glmapi.New(logger)

	rt.hub = &events.Hub{}
	rt.state = state.New(rt.hub)
	rt.sched = scheduler.New(rt.store, rt.client, rt.state, logger)
	rt.sched.SetObserver(rt.metrics)

	rt.web = webserver.New(cfg.Webserver, webserver.Deps{
		State:     rt.state,
		Refresher: rt.sched,
		Configs:   rt.store,
		Fetcher:   rt.client,
		History:   rt.history,
		Metrics:   reg,
		Logger:    logger,
	})

	rt.hub.Add(rt.history)
	rt.hub.Add(rt.notifier)
	rt.hub.Add(rt.metrics)
	rt.hub.Add(rt.web)

	rt.store.OnSave(func(c config.Config) {
		rt.notifier.SetConfig(c.Notifications)
		rt.history.SetLimit(c.HistoryLimit)
	})

	return rt, nil
}

func (rt *runtime) Start() {
	if err := rt.web.Start(); err != nil {
		rt.logger.Error("webserver: start failed", "err", err)
		fmt.Fprintf(os.Stderr, "warning: webserver: %v\n", err)
	}
	rt.sched.Start()
	rt.logger.Info("quota-tray started", "version", version)
}

func (rt *runtime) Close() {
	if rt.sched != nil {
		rt.sched.Stop()
	}
	if rt.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rt.web.Shutdown(ctx)
		cancel()
	}
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.logFile != nil {
		rt.logFile.Close()
	}
}
