// Package metrics exposes Prometheus collectors for resolutions and relays.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/drivestream/internal/domain"
)

const namespace = "drivestream"

// Resolution outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeCanceled = "canceled"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	probes             *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	resolutionProbes   prometheus.Histogram
	relays             *prometheus.CounterVec
	relayedBytes       prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration including streamed bodies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Upstream probes by candidate origin and classification.",
		}, []string{"origin", "kind"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Resolutions by outcome.",
		}, []string{"outcome"}),
		resolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Time to reach a terminal resolution state.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		resolutionProbes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_probes",
			Help:      "Probes performed per resolution.",
			Buckets:   prometheus.LinearBuckets(1, 1, 15),
		}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relayed responses by status code.",
		}, []string{"status"}),
		relayedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_bytes_total",
			Help:      "Bytes written to clients from upstream bodies.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.probes,
		m.resolutions,
		m.resolutionDuration,
		m.resolutionProbes,
		m.relays,
		m.relayedBytes,
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveProbe records one classified probe.
func (m *Metrics) ObserveProbe(origin domain.OriginKind, kind domain.BodyKind) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(string(origin), string(kind)).Inc()
}

// ObserveResolution records a terminal resolution. outcome is OutcomeResolved,
// OutcomeCanceled or a failure reason.
func (m *Metrics) ObserveResolution(outcome string, probes int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolutionProbes.Observe(float64(probes))
	m.resolutionDuration.Observe(elapsed.Seconds())
}

// ObserveRelay records a finished relay.
func (m *Metrics) ObserveRelay(status int, written int64) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(strconv.Itoa(status)).Inc()
	if written > 0 {
		m.relayedBytes.Add(float64(written))
	}
}
