// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package metrics_test

import (
	"errors"
	"testing"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.RegistrationOutcome("accepted")
	m.RegistrationOutcome("accepted")
	m.ConfirmationOutcome("confirmed")
	m.WhitelistInsert("inserted")
	m.MojangLookup("found")

	assert.InDelta(t, 2, testutil.ToFloat64(m.Registrations.WithLabelValues("accepted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Confirmations.WithLabelValues("confirmed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.WhitelistInserts.WithLabelValues("inserted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MojangLookups.WithLabelValues("found")), 0)
}

func TestSweepResult(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.SweepResult("unconfirmed", 3, nil)
	m.SweepResult("removed", 0, errors.New("boom"))
	m.ObserveSweep(time.Now())

	assert.InDelta(t, 3, testutil.ToFloat64(m.SweepDeleted.WithLabelValues("unconfirmed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepErrors.WithLabelValues("removed")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.SweepErrors.WithLabelValues("unconfirmed")), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.RegistrationOutcome("accepted")
		m.SweepResult("removed", 1, errors.New("x"))
		m.ObserveSweep(time.Now())
	})
}
