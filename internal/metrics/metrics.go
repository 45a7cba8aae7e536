// Package metrics exposes Prometheus instrumentation for transcription jobs.
//
// All Record methods are safe on a nil *Metrics, so components can take an
// optional collector without guarding every call.
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
)

// Comparison outcomes.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
	OutcomeNoClip  = "no_clip"
)

// Stage names for the duration histogram.
const (
	StageDiarize    = "diarize"
	StageResolve    = "resolve"
	StageTranscribe = "transcribe"
	StageReport     = "report"
)

// Metrics contains all Prometheus metrics for a transcription run.
type Metrics struct {
	registry *prometheus.Registry

	ChunksProcessed *prometheus.CounterVec
	AnchorsCreated  prometheus.Counter
	Comparisons     *prometheus.CounterVec
	Segments        *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
}

// New creates the metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChunksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_chunks_processed_total",
			Help: "Chunks processed, by diarization outcome",
		}, []string{"outcome"}),
		AnchorsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "minutes_anchors_created_total",
			Help: "Global speaker identities created",
		}),
		Comparisons: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_voice_comparisons_total",
			Help: "Voice similarity comparisons, by outcome",
		}, []string{"outcome"}),
		Segments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_segments_transcribed_total",
			Help: "Timeline segments transcribed, by outcome",
		}, []string{"outcome"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minutes_api_retries_total",
			Help: "Collaborator request retries, by service",
		}, []string{"service"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minutes_stage_duration_seconds",
			Help:    "Duration of pipeline stage steps",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27 minutes
		}, []string{"stage"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordChunk counts one processed chunk.
func (m *Metrics) RecordChunk(ok bool) {
	if m == nil {
		return
	}
	m.ChunksProcessed.WithLabelValues(okLabel(ok)).Inc()
}

// RecordAnchor counts a new global identity.
func (m *Metrics) RecordAnchor() {
	if m == nil {
		return
	}
	m.AnchorsCreated.Inc()
}

// RecordComparison counts a comparison with one of the Outcome constants.
func (m *Metrics) RecordComparison(outcome string) {
	if m == nil {
		return
	}
	m.Comparisons.WithLabelValues(outcome).Inc()
}

// RecordSegment counts a transcribed segment.
func (m *Metrics) RecordSegment(ok bool) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(okLabel(ok)).Inc()
}

// RecordRetry counts a retried request to service.
func (m *Metrics) RecordRetry(service string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(service).Inc()
}

// ObserveStage records how long one step of stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. It returns the
// listener error, or nil after a clean shutdown.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
