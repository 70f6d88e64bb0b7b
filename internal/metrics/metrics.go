// Package metrics holds the Prometheus collectors for the control plane.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	acceptChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libreg",
			Subsystem: "receive",
			Name:      "accept_checks_total",
			Help:      "Inbound acceptance checks by outcome and matching slot.",
		},
		[]string{"result", "slot"},
	)
	selectionChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libreg",
			Subsystem: "selection",
			Name:      "changes_total",
			Help:      "Committed journal events by type.",
		},
		[]string{"event"},
	)
	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libreg",
			Subsystem: "control",
			Name:      "rejections_total",
			Help:      "Rejected control operations by operation and error kind.",
		},
		[]string{"op", "kind"},
	)
	libraries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "libreg",
			Subsystem: "directory",
			Name:      "libraries",
			Help:      "Registered libraries.",
		},
	)
	checkpointGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "libreg",
			Subsystem: "checkpoint",
			Name:      "current",
			Help:      "Current checkpoint known to the endpoint.",
		},
	)
	journalSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "libreg",
			Subsystem: "journal",
			Name:      "head_seq",
			Help:      "Sequence number of the journal head.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libreg",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "libreg",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libreg",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total gRPC requests.",
		},
		[]string{"method", "code"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "libreg",
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "gRPC request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			acceptChecks, selectionChanges, rejections,
			libraries, checkpointGauge, journalSeq,
			httpRequests, httpDuration, rpcRequests, rpcDuration,
		)
	})
}

// RecordAccept counts one acceptance check. slot is "current", "previous",
// "default" or "none".
func RecordAccept(accepted bool, slot string) {
	Register()
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	acceptChecks.WithLabelValues(result, slot).Inc()
}

func RecordChange(event string) {
	Register()
	selectionChanges.WithLabelValues(event).Inc()
}

func RecordRejection(op, kind string) {
	Register()
	if kind == "" {
		kind = "unknown"
	}
	rejections.WithLabelValues(op, kind).Inc()
}

func SetLibraries(n int) {
	Register()
	libraries.Set(float64(n))
}

func SetCheckpoint(v uint64) {
	Register()
	checkpointGauge.Set(float64(v))
}

func SetJournalSeq(seq uint64) {
	Register()
	journalSeq.Set(float64(seq))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordRPC(method, code string, duration time.Duration) {
	Register()
	rpcRequests.WithLabelValues(method, code).Inc()
	rpcDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}
