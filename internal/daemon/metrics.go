package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/radioops/transmitd/internal/logfields"
)

// maxMetricsConns bounds concurrent scrapes; this endpoint shares a box
// with real-time audio playback.
const maxMetricsConns = 8

// Metrics aggregates and exposes daemon metrics.
type Metrics struct {
	registry *prom.Registry

	phase            *prom.GaugeVec
	transmissions    *prom.CounterVec
	windowsSkipped   *prom.CounterVec
	rigRetryAttempts prom.Counter
	scheduleReloads  prom.Counter
	lastTransmission prom.Gauge
	txDuration       prom.Histogram
}

// NewMetrics constructs and registers the daemon's Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: reg}
	m.phase = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "transmitd",
		Name:      "phase",
		Help:      "Current daemon phase (1 for the active phase, 0 otherwise)",
	}, []string{"phase"})
	m.transmissions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "transmitd",
		Name:      "transmissions_total",
		Help:      "Transmission cycles by outcome",
	}, []string{"outcome"})
	m.windowsSkipped = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "transmitd",
		Name:      "windows_skipped_total",
		Help:      "Windows skipped without keying, by reason",
	}, []string{"reason"})
	m.rigRetryAttempts = prom.NewCounter(prom.CounterOpts{
		Namespace: "transmitd",
		Name:      "retry_attempts_total",
		Help:      "Retried hardware operations across all supervised loops",
	})
	m.scheduleReloads = prom.NewCounter(prom.CounterOpts{
		Namespace: "transmitd",
		Name:      "schedule_reloads_total",
		Help:      "Schedule reloads applied at safe points",
	})
	m.lastTransmission = prom.NewGauge(prom.GaugeOpts{
		Namespace: "transmitd",
		Name:      "last_transmission_timestamp_seconds",
		Help:      "Unix time of the last completed transmission",
	})
	m.txDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "transmitd",
		Name:      "transmission_duration_seconds",
		Help:      "Wall-clock duration of completed transmissions",
		Buckets:   prom.ExponentialBuckets(1, 2, 12),
	})

	reg.MustRegister(m.phase, m.transmissions, m.windowsSkipped,
		m.rigRetryAttempts, m.scheduleReloads, m.lastTransmission, m.txDuration)
	return m
}

// SetPhase marks the active phase; all other phase series go to zero.
func (m *Metrics) SetPhase(p Phase) {
	for _, known := range []Phase{
		PhaseIdle, PhaseWaitingForWindow, PhaseAcquiringRig,
		PhaseCheckingChannel, PhaseTransmitting, PhasePostTxPause,
		PhaseError, PhaseStopped,
	} {
		v := 0.0
		if known == p {
			v = 1.0
		}
		m.phase.WithLabelValues(string(known)).Set(v)
	}
}

func (m *Metrics) IncTransmission(outcome string) { m.transmissions.WithLabelValues(outcome).Inc() }
func (m *Metrics) IncWindowSkipped(reason string) { m.windowsSkipped.WithLabelValues(reason).Inc() }
func (m *Metrics) IncRetryAttempt()               { m.rigRetryAttempts.Inc() }
func (m *Metrics) IncScheduleReload()             { m.scheduleReloads.Inc() }

func (m *Metrics) ObserveTransmission(d time.Duration) {
	m.lastTransmission.SetToCurrentTime()
	m.txDuration.Observe(d.Seconds())
}

// Serve exposes /metrics and /healthz until ctx is cancelled. The
// listener caps concurrent connections.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, maxMetricsConns)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	logger.Info("metrics listener started", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown", logfields.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	}
}
