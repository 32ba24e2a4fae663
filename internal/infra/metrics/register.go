package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

// register queues a collector at init time. Every file in this package calls
// it from init() so the set is complete no matter which binary links us.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister installs all queued collectors into the default registry.
// Safe to call more than once; only the first call does work.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(pending...)
		pending = nil
	})
}
