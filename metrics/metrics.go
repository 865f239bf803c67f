// Package metrics exposes Prometheus counters and histograms for the voice
// pipeline. All Record methods are safe on a nil *Metrics.
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

type Metrics struct {
	registry *prometheus.Registry

	// Recording sessions
	SessionsStarted prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	RecordingLength prometheus.Histogram
	ChunkStalls     prometheus.Counter

	// Pipeline stages
	PipelineRuns          *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	ClassificationLatency prometheus.Histogram

	// Dispatch and persistence
	RecordsCreated  *prometheus.CounterVec
	SideEffects     *prometheus.CounterVec
	SideEffectTime  *prometheus.HistogramVec
	QueuedRecording prometheus.Gauge
}

// New creates the metrics on a private registry so tests can build as many
// as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "cos_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cos_session_errors_total",
			Help: "Recording session failures by kind",
		}, []string{"kind"}),
		RecordingLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cos_recording_length_seconds",
			Help:    "Length of captured recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		ChunkStalls: f.NewCounter(prometheus.CounterOpts{
			Name: "cos_audio_chunk_stalls_total",
			Help: "Audio chunk hand-offs that waited for a full collector queue",
		}),

		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cos_pipeline_runs_total",
			Help: "Pipeline runs by source and outcome",
		}, []string{"source", "outcome"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cos_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		ClassificationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cos_classification_duration_seconds",
			Help:    "Duration of intent classification requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		RecordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cos_records_created_total",
			Help: "Draft records produced by dispatch",
		}, []string{"kind"}),
		SideEffects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cos_side_effects_total",
			Help: "Persistence side effects by sink and result",
		}, []string{"sink", "result"}),
		SideEffectTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cos_side_effect_duration_seconds",
			Help:    "Duration of persistence side effects",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		QueuedRecording: f.NewGauge(prometheus.GaugeOpts{
			Name: "cos_offline_queue_size",
			Help: "Recordings waiting in the offline queue",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

func (m *Metrics) RecordSessionError(kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRecording(seconds float64, stalls uint64) {
	if m == nil {
		return
	}
	m.RecordingLength.Observe(seconds)
	m.ChunkStalls.Add(float64(stalls))
}

func (m *Metrics) RecordPipelineRun(source, outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordTranscription(d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordClassification(d time.Duration) {
	if m == nil {
		return
	}
	m.ClassificationLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordCreated(kind string) {
	if m == nil {
		return
	}
	m.RecordsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSideEffect(sink string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SideEffects.WithLabelValues(sink, result).Inc()
	m.SideEffectTime.WithLabelValues(sink).Observe(d.Seconds())
}

func (m *Metrics) SetQueueSize(n int) {
	if m == nil {
		return
	}
	m.QueuedRecording.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
