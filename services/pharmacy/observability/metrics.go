// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the pharmacy service.
//
// # Description
//
// Metrics live in a private registry owned by the service, so tests and
// multiple service instances never collide on registration:
//   - request_count_total{method,endpoint}: every handled request
//   - request_duration_seconds{method,endpoint}: handler latency
//   - inventory_quantity{medication_id,shelf_id,shelf_location}: stock levels
//
// The endpoint label is the matched route template ("/medications/:id"),
// falling back to the raw path for unmatched requests.
//
// # Thread Safety
//
// All metric operations are thread-safe. Every method is a no-op on a nil
// *Metrics, so callers never need to guard metric emission.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Metrics holds the service's Prometheus collectors.
//
// # Fields
//
//   - RequestCount: Counter of requests by method and endpoint.
//   - RequestDuration: Histogram of handler latency by method and endpoint.
//   - InventoryQuantity: Gauge of the current quantity per inventory row.
type Metrics struct {
	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	InventoryQuantity *prometheus.GaugeVec

	registry *prometheus.Registry

	// shelves remembers each medication's current gauge labels so a shelf
	// move replaces the series instead of leaving the old one behind.
	mu      sync.Mutex
	shelves map[int]shelfLabels
}

type shelfLabels struct {
	id       string
	location string
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates the pharmacy metrics and registers them with reg.
//
// # Inputs
//
//   - reg: Target registry. Nil creates one via NewRegistry.
//
// # Limitations
//
//   - Panics if the metrics are already registered with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "request_count_total",
				Help: "Total number of requests",
			},
			[]string{"method", "endpoint"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "request_duration_seconds",
				Help:    "Request handling time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		InventoryQuantity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inventory_quantity",
				Help: "Quantity of medications in inventory",
			},
			[]string{"medication_id", "shelf_id", "shelf_location"},
		),
		registry: reg,
		shelves:  make(map[int]shelfLabels),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// =============================================================================
// Helper Methods
// =============================================================================

// ObserveRequest counts one request and records its duration. Label values
// the client library rejects are dropped silently.
func (m *Metrics) ObserveRequest(method, endpoint string, duration time.Duration) {
	if m == nil {
		return
	}
	if c, err := m.RequestCount.GetMetricWithLabelValues(method, endpoint); err == nil {
		c.Inc()
	}
	if h, err := m.RequestDuration.GetMetricWithLabelValues(method, endpoint); err == nil {
		h.Observe(duration.Seconds())
	}
}

// SetInventory sets the gauge for inv, removing the medication's previous
// series when its shelf labels changed.
func (m *Metrics) SetInventory(inv datatypes.Inventory) {
	if m == nil {
		return
	}
	id := strconv.Itoa(inv.MedicationID)
	next := shelfLabels{id: inv.ShelfID, location: inv.ShelfLocation}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.shelves[inv.MedicationID]; ok && prev != next {
		m.InventoryQuantity.DeleteLabelValues(id, prev.id, prev.location)
	}
	g, err := m.InventoryQuantity.GetMetricWithLabelValues(id, next.id, next.location)
	if err != nil {
		delete(m.shelves, inv.MedicationID)
		return
	}
	m.shelves[inv.MedicationID] = next
	g.Set(float64(inv.Quantity))
}

// DropInventory removes the gauge series of a deleted medication.
func (m *Metrics) DropInventory(medicationID int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.shelves[medicationID]
	if !ok {
		return
	}
	m.InventoryQuantity.DeleteLabelValues(strconv.Itoa(medicationID), prev.id, prev.location)
	delete(m.shelves, medicationID)
}
