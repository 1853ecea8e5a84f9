package simulation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("faultsim.simulation")

var (
	// faultsSimulated counts classified faults by mode and outcome
	faultsSimulated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultsim_faults_simulated_total",
		Help: "Faults classified by simulation mode and outcome",
	}, []string{"mode", "outcome"})

	// evaluationsTotal counts full circuit evaluations
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultsim_evaluations_total",
		Help: "Circuit evaluations performed by simulation mode",
	}, []string{"mode"})

	// runDuration tracks simulation run latency
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faultsim_run_duration_seconds",
		Help:    "Fault simulation run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 0.1ms to ~13s
	}, []string{"mode"})

	// runErrors counts failed or cancelled runs
	runErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultsim_run_errors_total",
		Help: "Fault simulation runs that ended with an error",
	}, []string{"mode", "error_type"})
)

func recordRun(report *Report) {
	mode := string(report.Mode)
	faultsSimulated.WithLabelValues(mode, "detected").Add(float64(report.Detected))
	faultsSimulated.WithLabelValues(mode, "undetectable").Add(float64(report.Undetectable))
	evaluationsTotal.WithLabelValues(mode).Add(float64(report.Stats.Evaluations))
	runDuration.WithLabelValues(mode).Observe(report.Stats.TotalTime.Seconds())
}

func recordError(mode Mode, errType string) {
	runErrors.WithLabelValues(string(mode), errType).Inc()
}
