package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultStale = "stale"
	resultError = "error"
)

var (
	lookupsOnce sync.Once
	lookups     *prometheus.CounterVec
)

func lookupCounter() *prometheus.CounterVec {
	lookupsOnce.Do(func() {
		lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "releasereport",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and result",
		}, []string{"cache", "result"})
		if err := prometheus.Register(lookups); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					lookups = existing
				}
			}
		}
	})
	return lookups
}
