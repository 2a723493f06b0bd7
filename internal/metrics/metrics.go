// Package metrics holds the Prometheus metrics for splitbill.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so New can be called more than once (e.g. in tests).
// All methods are safe on a nil *Metrics and do nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	splitsSaved     prometheus.Counter
	splitsDeleted   prometheus.Counter
	totalMismatches prometheus.Counter
	remoteDuration  *prometheus.HistogramVec
	remoteErrors    *prometheus.CounterVec
}

// New creates a registry and registers all application metrics in it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitbill_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		splitsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_splits_saved_total",
			Help: "Total split bills written to history.",
		}),
		splitsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_splits_deleted_total",
			Help: "Total split bills deleted from history.",
		}),
		totalMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitbill_total_mismatches_total",
			Help: "Participants whose draft total disagreed with the total re-derived on save.",
		}),
		remoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitbill_remote_request_duration_seconds",
				Help:    "Duration of calls to the recognition and share backends.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		remoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitbill_remote_errors_total",
				Help: "Total failed calls to the recognition and share backends.",
			},
			[]string{"service"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncSplitSaved counts a split written to history.
func (m *Metrics) IncSplitSaved() {
	if m == nil {
		return
	}
	m.splitsSaved.Inc()
}

// IncSplitDeleted counts a split removed from history.
func (m *Metrics) IncSplitDeleted() {
	if m == nil {
		return
	}
	m.splitsDeleted.Inc()
}

// AddTotalMismatches counts participants whose claimed total was replaced on save.
func (m *Metrics) AddTotalMismatches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.totalMismatches.Add(float64(n))
}

// ObserveRemote records the duration of a remote call.
func (m *Metrics) ObserveRemote(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.remoteDuration.WithLabelValues(service).Observe(d.Seconds())
}

// IncRemoteError counts a failed remote call.
func (m *Metrics) IncRemoteError(service string) {
	if m == nil {
		return
	}
	m.remoteErrors.WithLabelValues(service).Inc()
}
