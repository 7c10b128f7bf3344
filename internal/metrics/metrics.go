// Package metrics exposes Prometheus counters for the daemon. All
// collectors hang off a private registry so tests can run several
// daemons in one process without duplicate-registration panics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	FetchesTotal       *prometheus.CounterVec
	FetchFailuresTotal *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	CacheEntries       prometheus.Gauge
	ConnectionsActive  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nextmeetingd_requests_total",
		Help: "Requests handled, by request type.",
	}, []string{"type"})
	m.FetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nextmeetingd_fetches_total",
		Help: "Provider fetch attempts, by provider.",
	}, []string{"provider"})
	m.FetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nextmeetingd_fetch_failures_total",
		Help: "Failed provider fetches, by provider.",
	}, []string{"provider"})
	m.NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nextmeetingd_notifications_sent_total",
		Help: "Notifications emitted, by kind.",
	}, []string{"kind"})
	m.CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nextmeetingd_cache_entries",
		Help: "Cache entries currently held.",
	})
	m.ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nextmeetingd_connections_active",
		Help: "Client connections currently being served.",
	})

	m.registry.MustRegister(
		m.RequestsTotal,
		m.FetchesTotal,
		m.FetchFailuresTotal,
		m.NotificationsTotal,
		m.CacheEntries,
		m.ConnectionsActive,
	)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP listener for scrapes until ctx is cancelled. A
// no-op when addr is empty.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("metrics listener started", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
