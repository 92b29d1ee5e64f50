// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package jobs keeps the registration table in line with reality: stale
// unconfirmed registrations expire and confirmed registrations whose player
// was removed from the whitelist are dropped.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/policy"
	"github.com/samber/lo"
)

const (
	SweepUnconfirmed = "unconfirmed"
	SweepRemoved     = "removed"
)

// Store is the part of the repository the sweeps use.
type Store interface {
	UnconfirmedRegistrationsBefore(ctx context.Context, cutoff time.Time) ([]models.Registration, error)
	DeleteUnconfirmedRegistrationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ConfirmedRegistrations(ctx context.Context) ([]models.RegistrationSummary, error)
	WhitelistNames(ctx context.Context) ([]string, error)
	DeleteRegistrationByID(ctx context.Context, id int64) (int64, error)
}

// Ticker is the tick source of Run.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Runner runs both sweeps.
type Runner struct {
	store     Store
	interval  time.Duration
	ttl       time.Duration
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	metrics   *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.newTicker = fn
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a runner. interval is raised to one minute if shorter;
// ttl falls back to interval when not positive.
func NewRunner(store Store, interval, ttl time.Duration, opts ...Option) *Runner {
	if interval < time.Minute {
		interval = time.Minute
	}
	if ttl <= 0 {
		ttl = interval
	}
	r := &Runner{
		store:    store,
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{t: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval returns the effective sweep interval.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// CleanupUnconfirmed deletes unconfirmed registrations older than the TTL.
func (r *Runner) CleanupUnconfirmed(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.ttl)

	// Audit listing only; a failure here never blocks the delete.
	stale, err := r.store.UnconfirmedRegistrationsBefore(ctx, cutoff)
	if err != nil {
		slog.Warn("listing stale registrations failed", "error", err)
	}

	deleted, err := r.store.DeleteUnconfirmedRegistrationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting unconfirmed registrations: %w", err)
	}

	if deleted == 0 {
		slog.Debug("no unconfirmed registrations expired")
		return 0, nil
	}
	slog.Info("unconfirmed registrations expired", "count", deleted, "cutoff", cutoff)
	for _, reg := range stale {
		slog.Info("expired registration",
			"id", reg.ID, "email", policy.MaskEmail(reg.Email), "username", reg.MinecraftUsername)
	}
	return deleted, nil
}

// CleanupRemoved deletes confirmed registrations whose player is no longer
// on the whitelist. Registrations confirmed within the last interval are left
// alone. A failing delete is logged and the sweep continues.
func (r *Runner) CleanupRemoved(ctx context.Context) (int64, error) {
	names, err := r.store.WhitelistNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading whitelist: %w", err)
	}
	regs, err := r.store.ConfirmedRegistrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading confirmed registrations: %w", err)
	}

	// A confirmation is mirrored after its commit; rows confirmed within the
	// last interval may still be waiting for their whitelist entry.
	settled := r.now().Add(-r.interval)
	orphans := lo.Filter(MissingFromWhitelist(regs, names), func(reg models.RegistrationSummary, _ int) bool {
		return reg.ConfirmedAt == nil || !reg.ConfirmedAt.After(settled)
	})
	if len(orphans) == 0 {
		slog.Debug("no removed players found")
		return 0, nil
	}
	slog.Info("registrations without whitelist entry found", "count", len(orphans))

	var deleted int64
	for _, reg := range orphans {
		n, err := r.store.DeleteRegistrationByID(ctx, reg.ID)
		if err != nil {
			slog.Error("deleting registration failed", "id", reg.ID, "username", reg.MinecraftUsername, "error", err)
			continue
		}
		if n > 0 {
			deleted += n
			slog.Info("removed registration",
				"id", reg.ID, "email", policy.MaskEmail(reg.Email), "username", reg.MinecraftUsername)
		}
	}
	return deleted, nil
}

// RunOnce runs both sweeps in order. An error in one is logged and does not
// stop the other.
func (r *Runner) RunOnce(ctx context.Context) {
	start := time.Now()
	defer r.metrics.ObserveSweep(start)

	slog.Info("reconciliation pass started")

	n, err := r.CleanupUnconfirmed(ctx)
	r.metrics.SweepResult(SweepUnconfirmed, n, err)
	if err != nil {
		slog.Error("unconfirmed sweep failed", "error", err)
	}

	n, err = r.CleanupRemoved(ctx)
	r.metrics.SweepResult(SweepRemoved, n, err)
	if err != nil {
		slog.Error("removed sweep failed", "error", err)
	}

	slog.Info("reconciliation pass finished", "duration", time.Since(start))
}

// Run runs a pass immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.newTicker(r.interval)
	defer ticker.Stop()

	slog.Info("reconciliation jobs started", "interval", r.interval, "ttl", r.ttl)
	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			slog.Info("reconciliation jobs stopped")
			return
		case <-ticker.C():
		}
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MissingFromWhitelist returns confirmed registrations whose normalized name
// is not among the whitelist names. Registrations without a name are skipped.
func MissingFromWhitelist(regs []models.RegistrationSummary, whitelist []string) []models.RegistrationSummary {
	present := lo.SliceToMap(whitelist, func(name string) (string, struct{}) {
		return normalizeName(name), struct{}{}
	})
	return lo.Filter(regs, func(reg models.RegistrationSummary, _ int) bool {
		name := normalizeName(reg.MinecraftUsername)
		if name == "" {
			return false
		}
		_, ok := present[name]
		return !ok
	})
}

// Drift compares confirmed registrations with the whitelist.
type Drift struct {
	// Confirmed registrations with no whitelist entry.
	MissingFromWhitelist []string
	// Whitelist names with no confirmed registration.
	WithoutRegistration []string
}

// Compare reports the drift between confirmed registrations and the whitelist
// without changing anything. Names are normalized and sorted.
func Compare(ctx context.Context, store Store) (*Drift, error) {
	names, err := store.WhitelistNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading whitelist: %w", err)
	}
	regs, err := store.ConfirmedRegistrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading confirmed registrations: %w", err)
	}

	registered := lo.Uniq(lo.FilterMap(regs, func(reg models.RegistrationSummary, _ int) (string, bool) {
		name := normalizeName(reg.MinecraftUsername)
		return name, name != ""
	}))
	listed := lo.Uniq(lo.FilterMap(names, func(name string, _ int) (string, bool) {
		name = normalizeName(name)
		return name, name != ""
	}))

	missing, extra := lo.Difference(registered, listed)
	slices.Sort(missing)
	slices.Sort(extra)
	return &Drift{MissingFromWhitelist: missing, WithoutRegistration: extra}, nil
}
