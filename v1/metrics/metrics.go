package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups the worker metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	LaunchTotal   *prometheus.CounterVec // result=started|invalid|allocation|spawn
	OutcomeTotal  *prometheus.CounterVec // result=succeeded|failed, state
	HoldSeconds   prometheus.Histogram
	ActiveWorkers prometheus.Gauge
}

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// NewCollectors creates the worker collectors and registers them on reg.
// Registering twice on the same registry panics.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		LaunchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdlock_launch_total",
				Help: "Total worker launches by result",
			},
			[]string{"result"},
		),
		OutcomeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holdlock_outcome_total",
				Help: "Total finished workers by result and the state they failed in",
			},
			[]string{"result", "state"},
		),
		HoldSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "holdlock_hold_seconds",
			Help:    "Time a worker held its lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "holdlock_active_workers",
			Help: "Number of launched workers that have not finished",
		}),
	}
	reg.MustRegister(c.LaunchTotal, c.OutcomeTotal, c.HoldSeconds, c.ActiveWorkers)
	return c
}

// Launched records the result of a launch attempt.
func (c *Collectors) Launched(result string) {
	if c == nil {
		return
	}
	c.LaunchTotal.WithLabelValues(result).Inc()
	if result == "started" {
		c.ActiveWorkers.Inc()
	}
}

// Finished records a worker outcome. state is the state the worker ended in;
// held is how long it held the lock, zero if it never did.
func (c *Collectors) Finished(succeeded bool, state string, held float64) {
	if c == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	c.OutcomeTotal.WithLabelValues(result, state).Inc()
	if held > 0 {
		c.HoldSeconds.Observe(held)
	}
	c.ActiveWorkers.Dec()
}
