package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pollArmsTotal, pollTicksTotal, pollTimeoutsTotal) }

var pollArmsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_arms_total",
		Help: "Poll fallbacks armed after the push grace elapsed, labeled by kind.",
	},
	[]string{"kind"},
)

var pollTicksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_ticks_total",
		Help: "Status probes issued by armed pollers, labeled by kind and result.",
	},
	[]string{"kind", "result"}, // result='terminal', 'pending', 'error'
)

var pollTimeoutsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_timeouts_total",
		Help: "Entries abandoned after exhausting the poll attempt budget, labeled by kind.",
	},
	[]string{"kind"},
)

func IncPollArm(kind string) {
	pollArmsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncPollTick(kind, result string) {
	pollTicksTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func IncPollTimeout(kind string) {
	pollTimeoutsTotal.WithLabelValues(norm(kind)).Inc()
}
