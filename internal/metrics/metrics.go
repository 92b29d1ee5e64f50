// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics exposes Prometheus counters for registrations,
// confirmations and the reconciliation sweeps. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registrations    *prometheus.CounterVec
	Confirmations    *prometheus.CounterVec
	WhitelistInserts *prometheus.CounterVec
	SweepDeleted     *prometheus.CounterVec
	SweepErrors      *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	MojangLookups    *prometheus.CounterVec
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		Confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_confirmations_total",
			Help: "Confirmation attempts by outcome",
		}, []string{"outcome"}),
		WhitelistInserts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_mirror_inserts_total",
			Help: "Whitelist mirror writes by result",
		}, []string{"result"}),
		SweepDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_sweep_deleted_total",
			Help: "Registrations removed by reconciliation sweeps",
		}, []string{"sweep"}),
		SweepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_sweep_errors_total",
			Help: "Failed reconciliation sweeps",
		}, []string{"sweep"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whitelist_sweep_duration_seconds",
			Help:    "Duration of a full reconciliation pass",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		MojangLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_mojang_lookups_total",
			Help: "Mojang account lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RegistrationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConfirmationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Confirmations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WhitelistInsert(result string) {
	if m == nil {
		return
	}
	m.WhitelistInserts.WithLabelValues(result).Inc()
}

func (m *Metrics) MojangLookup(result string) {
	if m == nil {
		return
	}
	m.MojangLookups.WithLabelValues(result).Inc()
}

// SweepResult records one sweep's deletions, or its failure.
func (m *Metrics) SweepResult(sweep string, deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SweepErrors.WithLabelValues(sweep).Inc()
	}
	if deleted > 0 {
		m.SweepDeleted.WithLabelValues(sweep).Add(float64(deleted))
	}
}

// ObserveSweep records the duration of a pass started at start.
func (m *Metrics) ObserveSweep(start time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
}
