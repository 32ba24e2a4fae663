package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(maintenanceRunsTotal, maintenanceRemovedTotal) }

var maintenanceRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "maintenance_runs_total",
		Help: "Housekeeping passes, labeled by task and outcome.",
	},
	[]string{"task", "outcome"}, // 'ok', 'failed'
)

var maintenanceRemovedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "maintenance_removed_total",
		Help: "Items removed by housekeeping passes, labeled by task.",
	},
	[]string{"task"},
)

func IncMaintenanceRun(task, outcome string) {
	maintenanceRunsTotal.WithLabelValues(norm(task), norm(outcome)).Inc()
}

func AddMaintenanceRemoved(task string, n int) {
	if n > 0 {
		maintenanceRemovedTotal.WithLabelValues(norm(task)).Add(float64(n))
	}
}
