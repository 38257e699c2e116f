// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus collectors for the gateway. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestsInFlight   *prometheus.GaugeVec
	refreshTotal       *prometheus.CounterVec
	refreshInFlight    prometheus.Gauge
	queuedTotal        prometheus.Counter
	replaysTotal       *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
}

// NewMetrics registers the gateway collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctl_requests_total",
				Help: "Total number of API calls by outcome",
			},
			[]string{"method", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acctl_request_duration_seconds",
				Help:    "Duration of API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "acctl_requests_in_flight",
				Help: "Number of API calls currently in flight",
			},
			[]string{"method"},
		),
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctl_refresh_total",
				Help: "Session refresh calls by outcome",
			},
			[]string{"outcome"},
		),
		refreshInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "acctl_refresh_in_flight",
				Help: "1 while a session refresh is outstanding",
			},
		),
		queuedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "acctl_queued_requests_total",
				Help: "Calls parked while a session refresh was in flight",
			},
		),
		replaysTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctl_replays_total",
				Help: "Calls re-issued after a session refresh, by outcome",
			},
			[]string{"outcome"},
		),
		sessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctl_session_transitions_total",
				Help: "Session state changes by new state",
			},
			[]string{"state"},
		),
	}
}

func outcome(kind Kind) string {
	if kind == "" {
		return "success"
	}
	return string(kind)
}

// RecordRequest counts a finished call and observes its duration.
func (m *Metrics) RecordRequest(method string, kind Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, outcome(kind)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (m *Metrics) RecordRequestStart(method string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (m *Metrics) RecordRequestEnd(method string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method).Dec()
}

// RecordRefreshStart marks a refresh as outstanding.
func (m *Metrics) RecordRefreshStart() {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(1)
}

// RecordRefresh records a settled refresh.
func (m *Metrics) RecordRefresh(err error) {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(0)
	if err != nil {
		m.refreshTotal.WithLabelValues("failure").Inc()
		return
	}
	m.refreshTotal.WithLabelValues("success").Inc()
}

// RecordQueued counts a call parked behind an in-flight refresh.
func (m *Metrics) RecordQueued() {
	if m == nil {
		return
	}
	m.queuedTotal.Inc()
}

// RecordReplay counts a re-issued call.
func (m *Metrics) RecordReplay(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.replaysTotal.WithLabelValues("success").Inc()
		return
	}
	m.replaysTotal.WithLabelValues("failure").Inc()
}

// RecordSessionTransition counts a session state change.
func (m *Metrics) RecordSessionTransition(s Status) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(s.String()).Inc()
}
