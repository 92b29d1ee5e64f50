// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhitelistNames(t *testing.T) {
	db, repo := testutil.NewTestDB(t)

	testutil.AddWhitelistEntry(t, db, "069a79f444e94726a5befca90e38aaf5", "Notch")
	testutil.AddWhitelistEntry(t, db, "853c80ef3c3749fdaa49938b674adae6", "jeb_")
	testutil.AddWhitelistEntry(t, db, "00000000000000000000000000000000", "")

	names, err := repo.WhitelistNames(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Notch", "jeb_"}, names)
}

func TestInsertWhitelistIfMissing_Inserted(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	result, err := repo.InsertWhitelistIfMissing(ctx, "069a79f444e94726a5befca90e38aaf5", "Notch")

	require.NoError(t, err)
	assert.Equal(t, models.WhitelistInserted, result)
	assert.True(t, result.Granted())

	entries, err := repo.ListWhitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.WhitelistEntry{{UUID: "069a79f444e94726a5befca90e38aaf5", Name: "Notch"}}, entries)
}

func TestInsertWhitelistIfMissing_ExistingUUIDOrName(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.AddWhitelistEntry(t, db, "069a79f444e94726a5befca90e38aaf5", "Notch")

	tests := []struct {
		name     string
		uuid     string
		username string
	}{
		{"same uuid", "069a79f444e94726a5befca90e38aaf5", "Renamed"},
		{"same name", "ffffffffffffffffffffffffffffffff", "Notch"},
		{"same name other case", "ffffffffffffffffffffffffffffffff", "NOTCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.InsertWhitelistIfMissing(ctx, tt.uuid, tt.username)
			require.NoError(t, err)
			assert.Equal(t, models.WhitelistAlreadyExists, result)
			assert.True(t, result.Granted())
		})
	}

	entries, err := repo.ListWhitelist(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInsertWhitelistIfMissing_Idempotent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	first, err := repo.InsertWhitelistIfMissing(ctx, "069a79f444e94726a5befca90e38aaf5", "Notch")
	require.NoError(t, err)
	second, err := repo.InsertWhitelistIfMissing(ctx, "069a79f444e94726a5befca90e38aaf5", "Notch")
	require.NoError(t, err)

	assert.Equal(t, models.WhitelistInserted, first)
	assert.Equal(t, models.WhitelistAlreadyExists, second)
}

func TestInsertWhitelistIfMissing_RequiresFields(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	result, err := repo.InsertWhitelistIfMissing(context.Background(), "", "Notch")

	require.Error(t, err)
	assert.Equal(t, models.WhitelistError, result)
	assert.False(t, result.Granted())
}
