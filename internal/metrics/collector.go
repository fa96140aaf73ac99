// Package metrics exposes Prometheus counters for recording, sweep and upload
// outcomes. A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "avatarmail"

// Recording failure stages.
const (
	StageStart   = "start"
	StageCapture = "capture"
	StageStorage = "storage"
)

// Upload results.
const (
	UploadSucceeded = "succeeded"
	UploadFailed    = "failed"
	UploadDropped   = "dropped"
)

// Collector owns a private registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	recordingsSaved   prometheus.Counter
	recordingFailures *prometheus.CounterVec
	sweepDeletes      *prometheus.CounterVec
	sweepFailures     *prometheus.CounterVec
	uploads           *prometheus.CounterVec

	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		recordingsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_saved_total",
			Help:      "Recordings captured and written to storage",
		}),
		recordingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_failures_total",
			Help:      "Recording attempts that failed, by stage",
		}, []string{"stage"}),
		sweepDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deletes_total",
			Help:      "Files physically deleted by commit or abort sweeps",
		}, []string{"mode"}),
		sweepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Sweep deletes that failed and left an orphaned file",
		}, []string{"mode"}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Voice upload jobs, by result",
		}, []string{"result"}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (c *Collector) RecordingSaved() {
	if c == nil {
		return
	}
	c.recordingsSaved.Inc()
}

func (c *Collector) RecordingFailed(stage string) {
	if c == nil {
		return
	}
	c.recordingFailures.WithLabelValues(stage).Inc()
}

// SweepCompleted records the outcome of one ledger sweep.
func (c *Collector) SweepCompleted(mode string, deleted, failed int) {
	if c == nil {
		return
	}
	c.sweepDeletes.WithLabelValues(mode).Add(float64(deleted))
	c.sweepFailures.WithLabelValues(mode).Add(float64(failed))
}

func (c *Collector) UploadFinished(result string) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues(result).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	c.logger.Info("metrics listener started", zap.String("addr", listener.Addr().String()))
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
