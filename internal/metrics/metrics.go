// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch and delivery outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

var (
	sheetFetchTotal            *prometheus.CounterVec
	sheetFetchBytesTotal       *prometheus.CounterVec
	deliveriesTotal            *prometheus.CounterVec
	botUpdatesTotal            *prometheus.CounterVec
	residentMemoryBytes        prometheus.Gauge
	supervisorRestartsTotal    prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sheetFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_sheet_fetch_total",
				Help: "Total number of sheet exports fetched, labeled by sheet and status.",
			},
			[]string{"sheet", "status"},
		)

		sheetFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_sheet_fetch_bytes_total",
				Help: "Total number of export bytes fetched, labeled by sheet.",
			},
			[]string{"sheet"},
		)

		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_deliveries_total",
				Help: "Total number of document deliveries, labeled by status.",
			},
			[]string{"status"},
		)

		botUpdatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_bot_updates_total",
				Help: "Total number of bot updates handled, labeled by command or callback.",
			},
			[]string{"kind"},
		)

		residentMemoryBytes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_process_resident_memory_bytes",
				Help: "Resident memory last sampled by the watchdog.",
			},
		)

		supervisorRestartsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_supervisor_restarts_total",
				Help: "Total number of child restarts performed by the supervisor.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one export fetch.
func ObserveFetch(sheet string, status string, bytesFetched int) {
	Init()
	sheetFetchTotal.WithLabelValues(sheet, status).Inc()
	if bytesFetched > 0 {
		sheetFetchBytesTotal.WithLabelValues(sheet).Add(float64(bytesFetched))
	}
}

// ObserveDelivery records one document delivery attempt.
func ObserveDelivery(status string) {
	Init()
	deliveriesTotal.WithLabelValues(status).Inc()
}

// ObserveBotUpdate records one handled command or callback.
func ObserveBotUpdate(kind string) {
	Init()
	botUpdatesTotal.WithLabelValues(kind).Inc()
}

// SetResidentMemory publishes the latest memory sample.
func SetResidentMemory(bytes uint64) {
	Init()
	residentMemoryBytes.Set(float64(bytes))
}

// ObserveRestart increments the supervisor restart counter.
func ObserveRestart() {
	Init()
	supervisorRestartsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
