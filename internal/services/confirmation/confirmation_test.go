// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package confirmation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/repository"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/confirmation"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/token"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

const notchID = "069a79f444e94726a5befca90e38aaf5"

type fakeResolver struct {
	ids map[string]string
	err error
}

func (f *fakeResolver) ResolveID(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.ids[name], nil
}

type failingMirror struct {
	*repository.Repository
}

func (failingMirror) InsertWhitelistIfMissing(context.Context, string, string) (models.WhitelistInsertResult, error) {
	return models.WhitelistError, errors.New("whitelist table locked")
}

type fixture struct {
	db       *sqlx.DB
	repo     *repository.Repository
	clock    *testutil.Clock
	tokens   *token.Service
	resolver *fakeResolver
	metrics  *metrics.Metrics
	svc      *confirmation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	db, repo := testutil.NewTestDB(t, repository.WithClock(clock.Now))
	tokens, err := token.NewService("secret", 100*time.Minute, token.WithClock(clock.Now))
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		repo:     repo,
		clock:    clock,
		tokens:   tokens,
		resolver: &fakeResolver{ids: map[string]string{"Notch": notchID}},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.svc = confirmation.NewService(tokens, repo, f.resolver, f.metrics)
	return f
}

func (f *fixture) issue(t *testing.T, email string) string {
	t.Helper()
	tok, err := f.tokens.Issue(email)
	require.NoError(t, err)
	return tok
}

func TestDecode(t *testing.T) {
	f := newFixture(t)

	email, err := f.svc.Decode(context.Background(), f.issue(t, "max@sluz.ch"))

	require.NoError(t, err)
	assert.Equal(t, "max@sluz.ch", email)

	_, err = f.svc.Decode(context.Background(), "bogus")
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestConfirm_Whitelisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")

	result, err := f.svc.Confirm(ctx, f.issue(t, "max@sluz.ch"))

	require.NoError(t, err)
	assert.Equal(t, "max@sluz.ch", result.Email)
	assert.Equal(t, "Notch", result.MinecraftUsername)
	assert.Equal(t, "Test", result.FirstName)
	assert.True(t, result.Whitelisted)
	assert.Equal(t, models.WhitelistInserted, result.Mirror)
	assert.Equal(t, confirmation.StateWhitelisted, result.State)

	stored, err := f.repo.GetRegistrationByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)

	entries, err := f.repo.ListWhitelist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.WhitelistEntry{{UUID: notchID, Name: "Notch"}}, entries)
	assert.InDelta(t, 1, promtest.ToFloat64(f.metrics.Confirmations.WithLabelValues("whitelisted")), 0)
}

func TestConfirm_ReplayIsConflict(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")
	tok := f.issue(t, "max@sluz.ch")

	_, err := f.svc.Confirm(context.Background(), tok)
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), tok)
	assert.ErrorIs(t, err, confirmation.ErrAlreadyConfirmed)
}

func TestConfirm_OneRowPerCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.ids["jeb_"] = "853c80ef3c3749fdaa49938b674adae6"

	testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "jeb_")
	f.clock.Advance(time.Minute)
	testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")
	tok := f.issue(t, "max@sluz.ch")

	first, err := f.svc.Confirm(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "Notch", first.MinecraftUsername)

	second, err := f.svc.Confirm(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "jeb_", second.MinecraftUsername)

	_, err = f.svc.Confirm(ctx, tok)
	assert.ErrorIs(t, err, confirmation.ErrAlreadyConfirmed)
}

func TestConfirm_ExpiredTokenLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")
	tok := f.issue(t, "max@sluz.ch")

	f.clock.Advance(101 * time.Minute)
	_, err := f.svc.Confirm(ctx, tok)

	require.ErrorIs(t, err, token.ErrTokenExpired)
	stored, err := f.repo.GetRegistrationByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Confirmed)
	assert.InDelta(t, 1, promtest.ToFloat64(f.metrics.Confirmations.WithLabelValues("rejected")), 0)
}

func TestConfirm_InvalidToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Confirm(context.Background(), "not-a-token")

	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestConfirm_RegistrationSweptBeforeTokenExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")
	tok := f.issue(t, "max@sluz.ch")

	// The sweep TTL is shorter than the token lifetime.
	f.clock.Advance(20 * time.Minute)
	deleted, err := f.repo.DeleteUnconfirmedRegistrationsBefore(ctx, f.clock.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = f.svc.Confirm(ctx, tok)

	assert.ErrorIs(t, err, confirmation.ErrAlreadyConfirmed)
}

func TestConfirm_NoMojangAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Renamed")

	result, err := f.svc.Confirm(ctx, f.issue(t, "max@sluz.ch"))

	require.NoError(t, err)
	assert.False(t, result.Whitelisted)
	assert.Equal(t, confirmation.StateNoAccount, result.State)

	stored, err := f.repo.GetRegistrationByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed, "confirmation stays committed")
}

func TestConfirm_MojangUnavailable(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.New("timeout")
	testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")

	result, err := f.svc.Confirm(context.Background(), f.issue(t, "max@sluz.ch"))

	require.NoError(t, err)
	assert.False(t, result.Whitelisted)
}

func TestConfirm_AlreadyOnWhitelist(t *testing.T) {
	f := newFixture(t)
	testutil.AddWhitelistEntry(t, f.db, notchID, "Notch")
	testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")

	result, err := f.svc.Confirm(context.Background(), f.issue(t, "max@sluz.ch"))

	require.NoError(t, err)
	assert.True(t, result.Whitelisted)
	assert.Equal(t, models.WhitelistAlreadyExists, result.Mirror)
	assert.Equal(t, confirmation.StateAlreadyPresent, result.State)
}

func TestConfirm_MirrorFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := confirmation.NewService(f.tokens, failingMirror{f.repo}, f.resolver, nil)
	reg := testutil.NewTestRegistration(t, f.repo, "max@sluz.ch", "Notch")

	result, err := svc.Confirm(ctx, f.issue(t, "max@sluz.ch"))

	require.NoError(t, err)
	assert.False(t, result.Whitelisted)
	assert.Equal(t, models.WhitelistError, result.Mirror)
	assert.Equal(t, confirmation.StateMirrorFailed, result.State)

	stored, err := f.repo.GetRegistrationByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)
}

func TestConfirm_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	tok := f.issue(t, "max@sluz.ch")
	require.NoError(t, f.db.Close())

	_, err := f.svc.Confirm(context.Background(), tok)

	require.ErrorIs(t, err, confirmation.ErrTransient)
	assert.NotErrorIs(t, err, confirmation.ErrAlreadyConfirmed)
}
