package bridge

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sumo_bridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sumo_bridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sumo_bridge",
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Completed polling cycles.",
		},
		[]string{"success"},
	)
	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sumo_bridge",
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Polling cycle duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	activeVehicles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sumo_bridge",
			Subsystem: "poller",
			Name:      "active_vehicles",
			Help:      "Vehicles in the latest snapshot.",
		},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sumo_bridge",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket dashboard clients.",
		},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, pollCycles, pollDuration, activeVehicles, wsClients)
	})
}

func recordHTTPRequest(method, path string, status int, duration time.Duration) {
	registerMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func recordPollCycle(duration time.Duration, err error) {
	registerMetrics()
	pollCycles.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	pollDuration.Observe(duration.Seconds())
}

func recordSnapshot(snap *Snapshot) {
	registerMetrics()
	activeVehicles.Set(float64(len(snap.Vehicles) + len(snap.EmergencyVehicles)))
}

func setWSClients(n int) {
	registerMetrics()
	wsClients.Set(float64(n))
}
