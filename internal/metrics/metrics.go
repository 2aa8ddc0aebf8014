// Package metrics exposes the daemon's Prometheus gauges, grounded on
// mcpproxy-go's use of github.com/prometheus/client_golang.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's process-wide gauges.
type Metrics struct {
	registry *prometheus.Registry

	TrackedWindows    prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	PendingReplies    prometheus.Gauge
}

// New creates a fresh registry with the daemon's gauges registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TrackedWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gmenuproxy",
			Name:      "tracked_windows",
			Help:      "Number of windows currently bound to a DBusMenu object.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gmenuproxy",
			Name:      "active_subscriptions",
			Help:      "Number of active GMenu subscriptions across all tracked windows.",
		}),
		PendingReplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gmenuproxy",
			Name:      "pending_delayed_replies",
			Help:      "Number of GetLayout calls waiting on a subscription to resolve.",
		}),
	}

	registry.MustRegister(m.TrackedWindows, m.ActiveSubscriptions, m.PendingReplies)
	return m
}

// Server serves m's gauges over HTTP at addr until ctx is canceled. An
// empty addr means metrics are disabled, and Server returns nil
// immediately without listening.
func (m *Metrics) Server(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	}
}
