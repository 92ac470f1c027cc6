package devops

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *metrics
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		m := &metrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "releasereport",
				Subsystem: "devops",
				Name:      "requests_total",
				Help:      "Count of Azure DevOps API requests by operation and outcome",
			}, []string{"op", "outcome"}),
		}
		if err := prometheus.Register(m.requests); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					m.requests = existing
				}
			}
		}
		sharedMetrics = m
	})
	return sharedMetrics
}

func (m *metrics) observe(op, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.With(prometheus.Labels{"op": op, "outcome": outcome}).Inc()
}
