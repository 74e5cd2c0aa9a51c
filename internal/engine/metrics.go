package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_executions_total",
			Help: "Total number of backend execution calls.",
		},
		[]string{"backend", "outcome"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_execution_duration_seconds",
			Help:    "Backend execution call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)
}

// observeExecution records one backend call for metrics.
func observeExecution(backend, outcome string, d time.Duration) {
	executionsTotal.WithLabelValues(backend, outcome).Inc()
	executionDuration.WithLabelValues(backend).Observe(d.Seconds())
}
