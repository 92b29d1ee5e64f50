// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/repository"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_ConfirmLatestUnconfirmed_Concurrent(t *testing.T) {
	db, repo := testutil.NewTestPostgresDB(t)
	assertSingleConfirmation(t, db, repo)
}

func TestPostgres_ConfirmLatestUnconfirmed(t *testing.T) {
	clock := testutil.NewClock(t0)
	_, repo := testutil.NewTestPostgresDB(t, repository.WithClock(clock.Now))
	ctx := context.Background()

	older := testutil.NewTestRegistration(t, repo, "a@sluz.ch", "OlderName")
	clock.Advance(time.Minute)
	newer := testutil.NewTestRegistration(t, repo, "A@SLUZ.CH", "NewerName")

	summary, err := repo.ConfirmLatestUnconfirmed(ctx, "a@sluz.ch")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, summary.ID)

	summary, err = repo.ConfirmLatestUnconfirmed(ctx, "a@sluz.ch")
	require.NoError(t, err)
	assert.Equal(t, older.ID, summary.ID)

	_, err = repo.ConfirmLatestUnconfirmed(ctx, "a@sluz.ch")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgres_RegistrationQueries(t *testing.T) {
	clock := testutil.NewClock(t0)
	db, repo := testutil.NewTestPostgresDB(t, repository.WithClock(clock.Now))
	ctx := context.Background()

	stale := testutil.NewTestRegistration(t, repo, "a@sluz.ch", "Stale")
	confirmed := testutil.NewConfirmedRegistration(t, repo, "b@sluz.ch", "Notch")
	clock.Advance(20 * time.Minute)
	fresh := testutil.NewTestRegistration(t, repo, "a@sluz.ch", "Fresh")

	count, err := repo.CountRegistrationsByEmail(ctx, "A@sluz.ch")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	exists, err := repo.UsernameExists(ctx, "NOTCH")
	require.NoError(t, err)
	assert.True(t, exists)

	stored, err := repo.GetRegistrationByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, t0.Equal(stored.CreatedAt))

	cutoff := clock.Now().Add(-10 * time.Minute)
	rows, err := repo.UnconfirmedRegistrationsBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)

	deleted, err := repo.DeleteUnconfirmedRegistrationsBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	regs, err := repo.ConfirmedRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, confirmed.ID, regs[0].ID)

	n, err := repo.DeleteRegistrationByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), testutil.CountRegistrations(t, db))
}

func TestPostgres_InsertWhitelistIfMissing(t *testing.T) {
	db, repo := testutil.NewTestPostgresDB(t)
	ctx := context.Background()

	result, err := repo.InsertWhitelistIfMissing(ctx, "069a79f444e94726a5befca90e38aaf5", "Notch")
	require.NoError(t, err)
	assert.Equal(t, models.WhitelistInserted, result)

	for _, tc := range []struct{ uuid, name string }{
		{"069a79f444e94726a5befca90e38aaf5", "Renamed"},
		{"ffffffffffffffffffffffffffffffff", "NOTCH"},
	} {
		result, err = repo.InsertWhitelistIfMissing(ctx, tc.uuid, tc.name)
		require.NoError(t, err)
		assert.Equal(t, models.WhitelistAlreadyExists, result)
	}

	testutil.AddWhitelistEntry(t, db, "853c80ef3c3749fdaa49938b674adae6", "jeb_")
	names, err := repo.WhitelistNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Notch", "jeb_"}, names)

	testutil.RemoveWhitelistEntry(t, db, "jeb_")
	entries, err := repo.ListWhitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.WhitelistEntry{{UUID: "069a79f444e94726a5befca90e38aaf5", Name: "Notch"}}, entries)
}
