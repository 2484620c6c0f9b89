package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		workspacesActive,
		workspaceCleanupFailuresTotal,
		workspacesSweptTotal,
	)
}

var (
	workspacesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspaces_active",
			Help: "Job workspaces currently allocated.",
		},
	)

	// A growing value means scratch space is leaking.
	workspaceCleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workspace_cleanup_failures_total",
			Help: "Workspace deletions that failed.",
		},
	)

	workspacesSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workspaces_swept_total",
			Help: "Stale workspaces removed by the scratch sweeper.",
		},
	)
)

func AddWorkspacesActive(delta float64) {
	workspacesActive.Add(delta)
}

func IncWorkspaceCleanupFailure() {
	workspaceCleanupFailuresTotal.Inc()
}

func AddWorkspacesSwept(n int) {
	workspacesSweptTotal.Add(float64(n))
}
