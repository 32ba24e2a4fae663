package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pushEventsTotal, pushChannelDownsTotal) }

var pushEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "push_events_total",
		Help: "Push channel events received, labeled by scope.",
	},
	[]string{"scope"}, // 'jobs', 'tasks', 'balance', 'grants'
)

var pushChannelDownsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "push_channel_downs_total",
		Help: "Push channel interruptions observed, labeled by scope.",
	},
	[]string{"scope"},
)

func IncPushEvent(scope string) {
	pushEventsTotal.WithLabelValues(norm(scope)).Inc()
}

func IncPushChannelDown(scope string) {
	pushChannelDownsTotal.WithLabelValues(norm(scope)).Inc()
}
