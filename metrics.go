package medusa

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates decoding counters for Prometheus. Attach one to an
// engine with WithMetrics; a single Metrics value may be shared by several
// engines, the series are purely additive.
//
// Example:
//
//	metrics := medusa.NewMetrics(prometheus.DefaultRegisterer)
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithMetrics(metrics),
//	)
type Metrics struct {
	steps         prometheus.Counter
	tokens        prometheus.Counter
	generations   prometheus.Counter
	failures      prometheus.Counter
	acceptLength  prometheus.Histogram
	verifyLatency prometheus.Histogram
}

// NewMetrics creates and registers the decoding metrics. Pass nil to skip
// registration (useful in tests that only inspect the raw collectors).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medusa_decode_steps_total",
			Help: "Committed speculative decoding steps.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medusa_tokens_committed_total",
			Help: "Tokens committed to generated sequences.",
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medusa_generations_total",
			Help: "Completed generation calls.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medusa_generation_failures_total",
			Help: "Generation calls aborted by an error.",
		}),
		acceptLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medusa_accept_length",
			Help:    "Accepted path length per step, committed root included.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medusa_verify_duration_seconds",
			Help:    "Latency of batched tree verification passes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.tokens, m.generations, m.failures, m.acceptLength, m.verifyLatency)
	}
	return m
}

func (m *Metrics) observeStep(acceptLength int, verifyDur time.Duration) {
	if m == nil {
		return
	}
	m.steps.Inc()
	m.tokens.Add(float64(acceptLength))
	m.acceptLength.Observe(float64(acceptLength))
	m.verifyLatency.Observe(verifyDur.Seconds())
}

func (m *Metrics) observeGeneration(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failures.Inc()
		return
	}
	m.generations.Inc()
}
