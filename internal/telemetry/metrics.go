package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики оркестрации. Лейбл status — терминальный статус.
var (
	// RunsTotal — количество завершённых runs по статусам.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "runs_total",
		Help:      "Completed pipeline runs by terminal status.",
	}, []string{"status"})

	// JobsTotal — количество завершённых job instances по статусам.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "jobs_total",
		Help:      "Completed job instances by terminal status.",
	}, []string{"status"})

	// ActiveRuns — текущее количество выполняющихся runs.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "conveyor",
		Name:      "active_runs",
		Help:      "Runs currently tracked by the orchestrator.",
	})

	// JobDuration — длительность выполнения job instances.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conveyor",
		Name:      "job_duration_seconds",
		Help:      "Job instance execution duration.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"job"})

	// StepDuration — длительность выполнения отдельных шагов.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conveyor",
		Name:      "step_duration_seconds",
		Help:      "Step execution duration by kind (run/uses).",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"kind"})

	// EventsTotal — количество принятых webhook-событий по виду.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "events_total",
		Help:      "Received trigger events by kind.",
	}, []string{"kind"})
)

// MetricsHandler возвращает HTTP handler для /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
