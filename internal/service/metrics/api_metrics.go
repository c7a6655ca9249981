package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pivot",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pivot",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by API endpoint",
		},
		[]string{"endpoint"},
	)
)

// Register adds the API vectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}
