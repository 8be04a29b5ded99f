// Package metrics exposes process-wide Prometheus collectors for the
// writer actor, reader pool, and change-log poller.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WriterOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnx_writer_ops_total",
			Help: "Total number of writer ops processed, by index and op kind",
		},
		[]string{"index", "op"},
	)

	WriterOpFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnx_writer_op_failures_total",
			Help: "Total number of writer ops that failed, by index and op kind",
		},
		[]string{"index", "op"},
	)

	WriterQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lnx_writer_queue_depth",
			Help: "Number of ops currently buffered in the writer actor's queue",
		},
		[]string{"index"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnx_search_requests_total",
			Help: "Total number of search requests, by index and query mode",
		},
		[]string{"index", "mode"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lnx_search_duration_seconds",
			Help:    "Search request latency in seconds, by index",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnx_poll_cycles_total",
			Help: "Total number of change-log poll cycles, by index and outcome",
		},
		[]string{"index", "outcome"},
	)

	PollAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnx_poll_applied_total",
			Help: "Total number of change-log entries applied, by index",
		},
		[]string{"index"},
	)

	PollLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lnx_poll_lag_seconds",
			Help: "Seconds between now and the last applied watermark, by index",
		},
		[]string{"index"},
	)
)

func init() {
	prometheus.MustRegister(
		WriterOpsTotal,
		WriterOpFailuresTotal,
		WriterQueueDepth,
		SearchRequestsTotal,
		SearchDuration,
		PollCyclesTotal,
		PollAppliedTotal,
		PollLagSeconds,
	)
}

// Handler returns the HTTP handler that serves the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time against a histogram on Observe.
type Timer struct {
	start time.Time
}

func NewTimer() Timer {
	return Timer{start: time.Now()}
}

func (t Timer) ObserveSeconds(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}
