// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/database"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/repository"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T, opts ...repository.Option) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db, opts...)
}

// NewTestFileDB creates a file-backed SQLite database with a real connection
// pool, for tests that need concurrent transactions.
func NewTestFileDB(t *testing.T, opts ...repository.Option) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db, opts...)
}

// Clock is a settable time source for repositories and services.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at the given time.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTestRegistration creates an unconfirmed registration.
func NewTestRegistration(t *testing.T, repo *repository.Repository, email, username string) *models.Registration {
	t.Helper()
	reg := &models.Registration{
		FirstName:         "Test",
		LastName:          "User",
		Email:             email,
		School:            "KSR",
		MinecraftUsername: username,
	}
	require.NoError(t, repo.CreateRegistration(context.Background(), reg))
	return reg
}

// NewConfirmedRegistration creates a registration and confirms it.
func NewConfirmedRegistration(t *testing.T, repo *repository.Repository, email, username string) *models.Registration {
	t.Helper()
	reg := NewTestRegistration(t, repo, email, username)
	_, err := repo.ConfirmLatestUnconfirmed(context.Background(), email)
	require.NoError(t, err)
	reg.Confirmed = true
	return reg
}

// AddWhitelistEntry writes an entry the way the server plugin would.
func AddWhitelistEntry(t *testing.T, db *sqlx.DB, uuid, name string) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`INSERT INTO whitelist (uuid, name) VALUES (?, ?)`), uuid, name)
	require.NoError(t, err)
}

// RemoveWhitelistEntry simulates an operator removing a player externally.
func RemoveWhitelistEntry(t *testing.T, db *sqlx.DB, name string) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`DELETE FROM whitelist WHERE name = ?`), name)
	require.NoError(t, err)
}

// CountRegistrations returns the number of registration rows.
func CountRegistrations(t *testing.T, db *sqlx.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM registrations`))
	return count
}
