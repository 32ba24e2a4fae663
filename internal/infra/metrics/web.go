package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sseSubscribers, noticesSentTotal) }

var sseSubscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "sse_subscribers",
		Help: "Currently connected event stream subscribers.",
	},
)

var noticesSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notices_sent_total",
		Help: "User notices delivered, labeled by code and transport.",
	},
	[]string{"code", "transport"}, // transport='ui', 'telegram'
)

func IncSSESubscribers() { sseSubscribers.Inc() }
func DecSSESubscribers() { sseSubscribers.Dec() }

func SetSSESubscribers(n int) { sseSubscribers.Set(float64(n)) }

func IncNoticeSent(code, transport string) {
	noticesSentTotal.WithLabelValues(norm(code), norm(transport)).Inc()
}
