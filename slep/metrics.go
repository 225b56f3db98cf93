package slep

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects solver progress into its own Prometheus registry. One
// Metrics may observe many concurrent runs.
type Metrics struct {
	registry *prometheus.Registry

	Iterations        prometheus.Counter
	Backtracks        prometheus.Counter
	RejectedSteps     prometheus.Counter
	Objective         prometheus.Gauge
	Lipschitz         prometheus.Gauge
	IterationDuration prometheus.Histogram
	Runs              *prometheus.CounterVec // by final status
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Iterations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slep_solver_iterations_total",
		Help: "Proximal gradient iterations completed",
	})
	m.Backtracks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slep_solver_backtracks_total",
		Help: "Lipschitz estimate increases during line search",
	})
	m.RejectedSteps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slep_solver_rejected_steps_total",
		Help: "Iterations that kept the previous iterate because the objective rose",
	})
	m.Objective = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slep_solver_objective",
		Help: "Objective at the most recent candidate point",
	})
	m.Lipschitz = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slep_solver_lipschitz",
		Help: "Most recent Lipschitz estimate",
	})
	m.IterationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slep_solver_iteration_duration_seconds",
		Help:    "Wall time of one iteration in seconds",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	})
	m.Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slep_solver_runs_total",
		Help: "Finished solver runs",
	}, []string{"status"})

	m.registry.MustRegister(
		m.Iterations,
		m.Backtracks,
		m.RejectedSteps,
		m.Objective,
		m.Lipschitz,
		m.IterationDuration,
		m.Runs,
	)
	return m
}

// Registry exposes the registry for gathering or writing out.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile writes the current values in the text exposition format,
// for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Hooks returns solver hooks that feed m. A nil Metrics yields empty hooks.
func (m *Metrics) Hooks() Hooks {
	if m == nil {
		return Hooks{}
	}
	return Hooks{
		OnIteration: func(e IterationEvent) {
			m.Iterations.Inc()
			m.Backtracks.Add(float64(e.Backtracks))
			if !e.Accepted {
				m.RejectedSteps.Inc()
			}
			m.Objective.Set(e.Objective)
			m.Lipschitz.Set(e.Lipschitz)
			m.IterationDuration.Observe(e.Elapsed.Seconds())
		},
		OnFinish: func(e FinishEvent) {
			m.Runs.WithLabelValues(e.Status.String()).Inc()
		},
	}
}

// ChainHooks combines hooks; every event reaches each of them in order.
func ChainHooks(hs ...Hooks) Hooks {
	var out Hooks
	for _, h := range hs {
		if h.OnIteration != nil {
			prev, next := out.OnIteration, h.OnIteration
			out.OnIteration = func(e IterationEvent) {
				if prev != nil {
					prev(e)
				}
				next(e)
			}
		}
		if h.OnFinish != nil {
			prev, next := out.OnFinish, h.OnFinish
			out.OnFinish = func(e FinishEvent) {
				if prev != nil {
					prev(e)
				}
				next(e)
			}
		}
	}
	return out
}
