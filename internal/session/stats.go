package session

import "github.com/prometheus/client_golang/prometheus"

var (
	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "session",
		Name:      "requests_total",
		Help:      "Number of map server requests, by method and outcome.",
	}, []string{"method", "outcome"})

	syncCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "session",
		Name:      "sync_cycles_total",
		Help:      "Number of sync polls, by outcome.",
	}, []string{"outcome"})

	queueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "session",
		Name:      "queue_length",
		Help:      "Number of queued mutations waiting to be delivered.",
	})

	disconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "session",
		Name:      "disconnects_total",
		Help:      "Number of transitions into the disconnected state.",
	})
)

func init() {
	prometheus.MustRegister(requests)
	prometheus.MustRegister(syncCycles)
	prometheus.MustRegister(queueLength)
	prometheus.MustRegister(disconnects)
}
