package analysis

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/docprobe/internal/executor"
)

// Metrics holds the Prometheus collectors for analysis runs. A nil
// *Metrics records nothing.
//
// Thread Safety: Safe for concurrent use (Prometheus metrics are thread-safe).
type Metrics struct {
	// RunsTotal counts finished runs by report status.
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures whole runs.
	RunDurationSeconds prometheus.Histogram

	// StageDurationSeconds measures load, cases and sample stages.
	StageDurationSeconds *prometheus.HistogramVec

	// CasesTotal counts test cases by terminal status.
	CasesTotal *prometheus.CounterVec

	// LoadFailuresTotal counts failed loads by error code.
	LoadFailuresTotal *prometheus.CounterVec

	// SampledInvocationsTotal counts performance calls by result.
	SampledInvocationsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docprobe",
				Subsystem: "analysis",
				Name:      "runs_total",
				Help:      "Total analysis runs by report status",
			},
			[]string{"status"},
		),
		RunDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "docprobe",
				Subsystem: "analysis",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a whole analysis run",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		StageDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docprobe",
				Subsystem: "analysis",
				Name:      "stage_duration_seconds",
				Help:      "Wall time of each pipeline stage",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"stage"},
		),
		CasesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docprobe",
				Subsystem: "executor",
				Name:      "cases_total",
				Help:      "Total test cases by terminal status",
			},
			[]string{"status"},
		),
		LoadFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docprobe",
				Subsystem: "loader",
				Name:      "failures_total",
				Help:      "Total failed module loads by error code",
			},
			[]string{"code"},
		),
		SampledInvocationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docprobe",
				Subsystem: "perf",
				Name:      "invocations_total",
				Help:      "Total sampled invocations by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeRun(status Status, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) observeCase(s executor.Status) {
	if m == nil {
		return
	}
	m.CasesTotal.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) observeLoadFailure(code string) {
	if m == nil {
		return
	}
	m.LoadFailuresTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) observeSamples(ok, failed int) {
	if m == nil {
		return
	}
	m.SampledInvocationsTotal.WithLabelValues("ok").Add(float64(ok))
	m.SampledInvocationsTotal.WithLabelValues("failed").Add(float64(failed))
}
