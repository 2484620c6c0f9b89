package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		toolInvocationsTotal,
		toolDuration,
		workerQueueRejectionsTotal,
		workerBusy,
	)
}

var (
	toolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_invocations_total",
			Help: "External tool invocations by tool and result.",
		},
		[]string{"tool", "result"}, // ok|exit|timeout|canceled|start_error
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tool_duration_seconds",
			Help:    "External tool run time.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tool"},
	)

	workerQueueRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_queue_rejections_total",
			Help: "Invocations rejected because the worker queue was full.",
		},
	)

	workerBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_busy",
			Help: "Workers currently running a task.",
		},
	)
)

func ObserveTool(tool, result string, d time.Duration) {
	toolInvocationsTotal.WithLabelValues(norm(tool), norm(result)).Inc()
	toolDuration.WithLabelValues(norm(tool)).Observe(d.Seconds())
}

func IncWorkerQueueRejected() {
	workerQueueRejectionsTotal.Inc()
}

func AddWorkerBusy(delta float64) {
	workerBusy.Add(delta)
}
