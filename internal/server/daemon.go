package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chmouel/nextmeetingd/internal/cache"
	"github.com/chmouel/nextmeetingd/internal/config"
	"github.com/chmouel/nextmeetingd/internal/metrics"
	"github.com/chmouel/nextmeetingd/internal/notify"
	"github.com/chmouel/nextmeetingd/internal/provider"
	"github.com/chmouel/nextmeetingd/internal/scheduler"
)

// shutdownGrace is how long in-flight connections get to finish after
// shutdown starts.
const shutdownGrace = 5 * time.Second

// metricsSink wraps the real notification sink and counts emissions
// by kind.
type metricsSink struct {
	inner   notify.Sink
	metrics *metrics.Metrics
}

func (s *metricsSink) Notify(n notify.Notification) {
	s.metrics.NotificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	s.inner.Notify(n)
}

// Run assembles the daemon from cfg and blocks until shutdown: a
// SIGINT/SIGTERM, a client shutdown request, or ctx cancellation.
// cfgPath is re-read on SIGHUP.
func Run(ctx context.Context, cfgPath string, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pidFile, err := AcquirePIDFile(cfg.PIDPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Release(); err != nil {
			logger.Warn("release pid file", "error", err)
		}
	}()

	registry, err := provider.NewRegistry(cfg.ProviderSpecs())
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	m := metrics.New()
	eventCache := cache.New(cfg.CacheTTL.Std(), logger)

	store, err := notify.OpenDismissedStore(dismissedPath())
	if err != nil {
		// Dismissals degrade to in-memory only.
		logger.Warn("dismissed store unavailable", "error", err)
		store = nil
	}
	notifier := notify.NewEngine(notifyConfig(cfg), notifySink(cfg, m, logger), store, logger)

	sched := scheduler.New(
		eventCache, registry, notifier, m,
		cfg.RefreshInterval.Std(), cfg.CacheTTL.Std(), cfg.FetchTimeout.Std(),
		logger,
	)

	handler := NewHandler(sched, notifier, m, cancel)
	srv := NewServer(cfg.SocketPath, handler, m, cfg.ConnectionTimeout.Std(), cfg.MaxConnections, logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler exited", "error", err)
			cancel()
		}
	}()
	go func() {
		if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	reload := func() {
		fresh, err := config.Load(cfgPath)
		if err != nil {
			logger.Error("reload failed, keeping previous config", "path", cfgPath, "error", err)
			return
		}
		sched.Enqueue(scheduler.Reconfigure{
			Interval:     fresh.RefreshInterval.Std(),
			TTL:          fresh.CacheTTL.Std(),
			FetchTimeout: fresh.FetchTimeout.Std(),
		})
		notifier.SetConfig(notifyConfig(fresh))
		logger.Info("configuration reloaded", "path", cfgPath)
	}
	go watchSignals(ctx, cancel, reload, logger)

	logger.Info("daemon ready", "pid", os.Getpid(), "socket", cfg.SocketPath)
	<-ctx.Done()

	logger.Info("shutting down", "grace", shutdownGrace)
	sched.Enqueue(scheduler.Stop{})
	srv.Stop(shutdownGrace)
	return nil
}

func notifyConfig(cfg *config.Config) notify.Config {
	return notify.Config{
		Enabled:           cfg.Notify.Enabled,
		Minutes:           cfg.Notify.Minutes,
		EndWarningMinutes: cfg.Notify.EndWarningMinutes,
		MorningAgenda:     cfg.Notify.MorningAgenda,
	}
}

func notifySink(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) notify.Sink {
	var inner notify.Sink = &notify.LogSink{Logger: logger}
	if cfg.Notify.Command != "" {
		inner = &notify.CommandSink{Command: cfg.Notify.Command, Logger: logger}
	}
	return &metricsSink{inner: inner, metrics: m}
}

// dismissedPath is where dismissals persist across restarts:
// ~/.local/state/nextmeeting/dismissed.json, or the runtime dir when
// no home is available.
func dismissedPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(config.RuntimeDir(), "dismissed.json")
	}
	return filepath.Join(home, ".local", "state", "nextmeeting", "dismissed.json")
}
