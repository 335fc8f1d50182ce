// Package metrics exposes Prometheus counters for QR detection and decoding.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/binito/despesify/internal/qr"
)

const namespace = "despesify"

// Metrics holds the collectors registered for the service
type Metrics struct {
	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	attemptTime  *prometheus.HistogramVec
	detections   *prometheus.CounterVec
	decodes      *prometheus.CounterVec
	requests     *prometheus.CounterVec
	reconcileHit *prometheus.CounterVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "attempts_total",
			Help:      "QR scan attempts by strategy and result.",
		}, []string{"strategy", "found"}),
		attemptTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "attempt_seconds",
			Help:      "Duration of a single QR scan attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"capability"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "images_total",
			Help:      "Images processed by detection outcome.",
		}, []string{"outcome"}),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payload",
			Name:      "decodes_total",
			Help:      "Payloads decoded by outcome.",
		}, []string{"outcome"}),
		reconcileHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payload",
			Name:      "reconciliations_total",
			Help:      "Which field matched the VAT total.",
		}, []string{"match"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status.",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.attemptTime,
		m.detections,
		m.decodes,
		m.reconcileHit,
		m.requests,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveAttempt matches qr.Observer
func (m *Metrics) ObserveAttempt(s qr.Strategy, found bool, elapsed time.Duration) {
	m.attempts.WithLabelValues(s.ID(), boolLabel(found)).Inc()
	m.attemptTime.WithLabelValues(s.Capability.String()).Observe(elapsed.Seconds())
}

// Detection counts an image outcome: found, exhausted, timeout, load_error
func (m *Metrics) Detection(outcome string) {
	m.detections.WithLabelValues(outcome).Inc()
}

// Decode counts a payload outcome (ok / error) and the reconciliation match
func (m *Metrics) Decode(ok bool, match string) {
	if !ok {
		m.decodes.WithLabelValues("error").Inc()
		return
	}
	m.decodes.WithLabelValues("ok").Inc()
	if match != "" {
		m.reconcileHit.WithLabelValues(match).Inc()
	}
}

// Request counts an API response
func (m *Metrics) Request(route string, status int) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
