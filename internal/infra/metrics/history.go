package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(historyRecordsTotal, historyUpgradesTotal, historyFeedsTotal, historyMergeItems)
}

var historyRecordsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "history_records_total",
		Help: "History items recorded durably, labeled by kind.",
	},
	[]string{"kind"},
)

var historyUpgradesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "history_upgrades_total",
		Help: "Ephemeral-to-durable media upgrades, labeled by outcome.",
	},
	[]string{"outcome"}, // 'ok', 'failed'
)

var historyFeedsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "history_feeds_total",
		Help: "History feed builds, labeled by origin of the freshest source consulted.",
	},
	[]string{"origin"}, // 'cache', 'store', 'live'
)

var historyMergeItems = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "history_merge_items",
		Help:    "Distribution of merged feed sizes before the display limit.",
		Buckets: []float64{0, 5, 10, 20, 35, 50, 75, 100},
	},
)

func IncHistoryRecord(kind string) {
	historyRecordsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncHistoryUpgrade(outcome string) {
	historyUpgradesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncHistoryFeed(origin string) {
	historyFeedsTotal.WithLabelValues(norm(origin)).Inc()
}

func ObserveMergeSize(n int) {
	historyMergeItems.Observe(float64(n))
}
