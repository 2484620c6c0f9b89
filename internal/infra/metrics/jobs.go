package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsTotal, jobDuration) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Finished jobs by operation and result.",
		},
		[]string{"op", "result"}, // result: ok|invalid|quota|busy|tool_failure|integrity|filesystem|canceled|error
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall time of a job from admission to cleanup.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"op"},
	)
)

func ObserveJob(op, result string, d time.Duration) {
	jobsTotal.WithLabelValues(norm(op), norm(result)).Inc()
	if d > 0 {
		jobDuration.WithLabelValues(norm(op)).Observe(d.Seconds())
	}
}
