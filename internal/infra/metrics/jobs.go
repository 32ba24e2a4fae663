package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(entriesResolvedTotal, entriesActive) }

var entriesResolvedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tracker_entries_resolved_total",
		Help: "Tracked generation entries resolved, labeled by kind, outcome and winning channel.",
	},
	[]string{"kind", "outcome", "channel"}, // kind='text'|'audio', outcome='completed'|'failed'|'timed_out', channel='push'|'poll'|'rehydrate'
)

var entriesActive = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "tracker_entries_active",
		Help: "Currently tracked in-flight generation entries per kind.",
	},
	[]string{"kind"},
)

func IncEntryResolved(kind, outcome, channel string) {
	entriesResolvedTotal.WithLabelValues(norm(kind), norm(outcome), norm(channel)).Inc()
}

func IncEntriesActive(kind string) {
	entriesActive.WithLabelValues(norm(kind)).Inc()
}

func DecEntriesActive(kind string) {
	entriesActive.WithLabelValues(norm(kind)).Dec()
}
