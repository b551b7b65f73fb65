package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Displacement/internal/domain"
)

// Metrics — Prometheus метрики pipeline.
//
// Заполняются из событий Runner: Observe подписывается на runner
// через Runner.Subscribe.
type Metrics struct {
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	StepDuration *prometheus.HistogramVec
	StepFailures *prometheus.CounterVec
	RunActive    prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "displacement_runs_started_total",
			Help: "Total pipeline runs started",
		}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "displacement_runs_finished_total",
			Help: "Total pipeline runs finished, by final status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "displacement_run_duration_seconds",
			Help:    "Duration of finished pipeline runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "displacement_step_duration_seconds",
			Help:    "Duration of remote step calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"step", "status"}),
		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "displacement_step_failures_total",
			Help: "Total failed steps",
		}, []string{"step"}),
		RunActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "displacement_run_active",
			Help: "1 while a pipeline run is in progress",
		}),
	}
}

// Observe обновляет метрики по событию pipeline.
func (m *Metrics) Observe(ev domain.Event) {
	switch ev.Type {
	case domain.EventRunStarted:
		m.RunsStarted.Inc()
		m.RunActive.Set(1)

	case domain.EventStepProgress:
		if ev.StepStatus.IsTerminal() {
			m.StepDuration.WithLabelValues(ev.StepKey, string(ev.StepStatus)).Observe(ev.Duration.Seconds())
		}

	case domain.EventStepFailed:
		m.StepFailures.WithLabelValues(ev.StepKey).Inc()

	case domain.EventRunFinished:
		status := domain.PipelineStatusCompleted
		if ev.Run != nil {
			status = ev.Run.Status
		} else if ev.Error != "" {
			status = domain.PipelineStatusAborted
		}
		m.RunsFinished.WithLabelValues(string(status)).Inc()
		m.RunDuration.Observe(ev.Duration.Seconds())
		m.RunActive.Set(0)
	}
}
