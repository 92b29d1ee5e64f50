// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"sync"
	"testing"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/database"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/repository"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/vinovest/sqlx"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// postgresDSN starts one shared Postgres container per test binary.
// The container is not terminated by the tests; Ryuk removes it.
func postgresDSN() (string, error) {
	pgOnce.Do(func() {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("registrations"),
			tcpostgres.WithUsername("registrations"),
			tcpostgres.WithPassword("registrations"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}
		pgDSN, pgErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	return pgDSN, pgErr
}

// NewTestPostgresDB opens a migrated, emptied Postgres database in a
// container. Skipped in -short mode and when Docker is not available.
func NewTestPostgresDB(t *testing.T, opts ...repository.Option) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests need a container")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	dsn, err := postgresDSN()
	require.NoError(t, err, "failed to start postgres container")

	db, err := database.Open(database.DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = db.Exec(`TRUNCATE registrations, whitelist RESTART IDENTITY`)
	require.NoError(t, err)

	return db, repository.New(db, opts...)
}
