package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clanboard",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Backend requests by operation and response code.",
	}, []string{"op", "code"})

	backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clanboard",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Backend request latency by operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

func observe(op, code string, start time.Time) {
	backendRequests.WithLabelValues(op, code).Inc()
	backendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
