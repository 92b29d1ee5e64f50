// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/database"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/handlers"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/i18n"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/jobs"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/repository"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/confirmation"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/email"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/mojang"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/registration"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vinovest/sqlx"
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	db       *sqlx.DB
	repo     *repository.Repository
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	runner   *jobs.Runner
	handlers *handlers.Handlers
}

// openStore opens the database and everything that only needs the store.
func openStore(cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var repoOpts []repository.Option
	if cfg.Database.Timeout > 0 {
		repoOpts = append(repoOpts, repository.WithTimeout(cfg.Database.Timeout))
	}
	repo := repository.New(db, repoOpts...)

	return &app{
		cfg:      cfg,
		db:       db,
		repo:     repo,
		registry: registry,
		metrics:  m,
		runner: jobs.NewRunner(repo, cfg.Jobs.Interval(), cfg.Jobs.UnconfirmedTTL(),
			jobs.WithMetrics(m)),
	}, nil
}

// newApp wires the full web application.
func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	a, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewService(cfg.Token.Secret, cfg.Jobs.TokenMaxAge())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	mailer, err := email.NewService(&cfg.SMTP, cfg.Server.BaseURL, tokens.MaxAge())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	accounts := mojang.NewClient(cfg.Mojang, mojang.WithMetrics(a.metrics))

	registrar := registration.NewService(a.repo, accounts, tokens, mailer, cfg.Policy, cfg.Admin, a.metrics)
	confirmer := confirmation.NewService(tokens, a.repo, accounts, a.metrics)
	a.handlers = handlers.New(registrar, confirmer, a.repo, cfg.Policy.AcceptedDomains)

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}
