package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// watchSignals maps process signals onto daemon actions: SIGINT and
// SIGTERM trigger shutdown, SIGHUP triggers a configuration reload.
// Returns when ctx is cancelled.
func watchSignals(ctx context.Context, shutdown func(), reload func(), logger *slog.Logger) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			dispatchSignal(sig, shutdown, reload, logger)
		}
	}
}

// dispatchSignal maps one signal to its action. Split out so the
// mapping is testable without delivering real signals.
func dispatchSignal(sig os.Signal, shutdown func(), reload func(), logger *slog.Logger) {
	switch sig {
	case unix.SIGHUP:
		logger.Info("reload requested", "signal", sig)
		reload()
	default:
		logger.Info("shutdown requested", "signal", sig)
		shutdown()
	}
}
