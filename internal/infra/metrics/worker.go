package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerQueueDepth, workerDroppedTotal) }

var workerQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Delivery tasks waiting for a worker.",
	},
)

var workerDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "worker_dropped_total",
		Help: "Delivery tasks rejected because the queue was full.",
	},
)

func SetWorkerQueueDepth(n int) {
	workerQueueDepth.Set(float64(n))
}

func IncWorkerDropped() {
	workerDroppedTotal.Inc()
}
