// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package icd9api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace = "icd9"
	apiSubsystem     = "api"
)

// Metrics holds the Prometheus instruments for the API.
//
// # Fields
//
//   - RequestsTotal: Requests by route and status code.
//   - RequestDuration: Latency by route.
//   - InFlight: Requests currently being served.
//   - NotFoundTotal: Lookups of unknown codes by route.
//   - TreeNodes: Nodes in the loaded tree, 0 before loading.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	NotFoundTotal   *prometheus.CounterVec
	TreeNodes       prometheus.Gauge
}

// NewMetrics creates and registers the API metrics with reg.
//
// # Inputs
//
//   - reg: Registry to register with. Nil uses prometheus.DefaultRegisterer.
//
// # Limitations
//
//   - Panics if the same registry receives the metrics twice.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by route and status code",
			},
			[]string{"route", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "request_duration_seconds",
				Help:      "API request latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"route"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being served",
			},
		),

		NotFoundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "code_not_found_total",
				Help:      "Lookups of unknown codes by route",
			},
			[]string{"route"},
		),

		TreeNodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "tree_nodes",
				Help:      "Number of nodes in the loaded hierarchy",
			},
		),
	}
}

// Middleware records request count, latency, and in-flight requests.
//
// Routes are labeled by their registered pattern, so "/codes/:code" is one
// series regardless of the code requested. Unmatched paths use "unmatched".
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// RecordNotFound counts a lookup of an unknown code.
func (m *Metrics) RecordNotFound(route string) {
	m.NotFoundTotal.WithLabelValues(route).Inc()
}
