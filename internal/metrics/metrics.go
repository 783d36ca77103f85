// Package metrics exposes reconciliation timings and outcomes to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sydlexius/confluence/internal/event"
	"github.com/sydlexius/confluence/internal/reconcile"
)

// Batch outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors on a private registry. It implements
// reconcile.Observer.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	batches       *prometheus.CounterVec
	instructions  *prometheus.CounterVec
	persisted     *prometheus.CounterVec
	events        *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

var _ reconcile.Observer = (*Metrics)(nil)

// New registers the collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confluence_stage_duration_seconds",
			Help:    "Duration of each reconciliation stage",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"stage"}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_batches_total",
			Help: "Reconciled batches by outcome",
		}, []string{"outcome"}),
		instructions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_instructions_total",
			Help: "Applied instructions by strategy",
		}, []string{"strategy"}),
		persisted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_persisted_total",
			Help: "Rows written by committed batches",
		}, []string{"kind"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_events_total",
			Help: "Events published on the bus by type",
		}, []string{"type"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "confluence_last_success_timestamp_seconds",
			Help: "Unix time of the last committed batch",
		}),
	}
}

// ObserveStage implements reconcile.Observer.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveBatch implements reconcile.Observer.
func (m *Metrics) ObserveBatch(applied reconcile.ApplyResult, persisted reconcile.PersistenceResult, err error) {
	if err != nil {
		m.batches.WithLabelValues(OutcomeFailed).Inc()
		return
	}
	m.batches.WithLabelValues(OutcomeSucceeded).Inc()
	m.instructions.WithLabelValues(string(reconcile.StrategyCreate)).Add(float64(applied.Created))
	m.instructions.WithLabelValues(string(reconcile.StrategyMerge)).Add(float64(applied.Merged))
	m.instructions.WithLabelValues(string(reconcile.StrategySkip)).Add(float64(applied.Skipped))
	m.instructions.WithLabelValues(string(reconcile.StrategyManualReview)).Add(float64(applied.ManualReview))
	m.persisted.WithLabelValues("entities").Add(float64(persisted.PersistedEntities))
	m.persisted.WithLabelValues("events").Add(float64(persisted.PersistedEvents))
	if persisted.Committed {
		m.lastSuccess.SetToCurrentTime()
	}
}

// CountEvent is an event.Handler counting bus traffic.
func (m *Metrics) CountEvent(e event.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving metrics on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
