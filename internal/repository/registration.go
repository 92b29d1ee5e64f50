// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
)

// CountRegistrationsByEmail returns how many registrations exist for an email,
// confirmed or not.
func (r *Repository) CountRegistrationsByEmail(ctx context.Context, email string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	err := r.db.GetContext(ctx, &count,
		r.db.Rebind(`SELECT COUNT(*) FROM registrations WHERE email = ?`), normalize(email))
	return count, err
}

// UsernameExists checks whether any registration claims the Minecraft name.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM registrations WHERE lower(minecraft_username) = ?)`),
		normalize(username))
	return exists, err
}

// CreateRegistration stores a new unconfirmed registration. ID, Confirmed and
// CreatedAt are set by the repository.
func (r *Repository) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	reg.Email = normalize(reg.Email)
	reg.MinecraftUsername = strings.TrimSpace(reg.MinecraftUsername)
	reg.Confirmed = false
	reg.CreatedAt = r.now().UTC()

	query := r.db.Rebind(`INSERT INTO registrations
		(firstname, lastname, email, school, minecraft_username, confirmed, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?) RETURNING id`)

	return r.db.GetContext(ctx, &reg.ID, query,
		reg.FirstName, reg.LastName, reg.Email, reg.School, reg.MinecraftUsername, reg.CreatedAt)
}

// GetRegistrationByID retrieves a registration by ID.
func (r *Repository) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var reg models.Registration
	err := r.db.GetContext(ctx, &reg, r.db.Rebind(`SELECT * FROM registrations WHERE id = ?`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &reg, nil
}

// ListRegistrations returns all registrations, newest first.
func (r *Repository) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var regs []models.Registration
	err := r.db.SelectContext(ctx, &regs, `SELECT * FROM registrations ORDER BY created_at DESC, id DESC`)
	return regs, err
}

// ConfirmLatestUnconfirmed flips exactly one registration, the newest
// unconfirmed one for the email, to confirmed. The select and the guarded
// update share one transaction; ErrNotFound means nothing was confirmed.
func (r *Repository) ConfirmLatestUnconfirmed(ctx context.Context, email string) (*models.RegistrationSummary, error) {
	email = normalize(email)
	if email == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	var row models.RegistrationSummary
	selectQuery := `SELECT id, email, firstname, minecraft_username
		FROM registrations
		WHERE email = ? AND confirmed = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1` + r.lockClause()
	if err := tx.GetContext(ctx, &row, tx.Rebind(selectQuery), email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select unconfirmed registration: %w", err)
	}

	confirmedAt := r.now().UTC()
	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE registrations SET confirmed = TRUE, confirmed_at = ? WHERE id = ? AND confirmed = FALSE`),
		confirmedAt, row.ID)
	if err != nil {
		return nil, fmt.Errorf("confirm registration %d: %w", row.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("confirm registration %d: %w", row.ID, err)
	}
	if affected != 1 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit confirmation: %w", err)
	}
	row.ConfirmedAt = &confirmedAt
	return &row, nil
}

// UnconfirmedRegistrationsBefore lists unconfirmed registrations created
// before the cutoff.
func (r *Repository) UnconfirmedRegistrationsBefore(ctx context.Context, cutoff time.Time) ([]models.Registration, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var regs []models.Registration
	err := r.db.SelectContext(ctx, &regs,
		r.db.Rebind(`SELECT * FROM registrations WHERE confirmed = FALSE AND created_at < ? ORDER BY created_at`),
		cutoff.UTC())
	return regs, err
}

// DeleteUnconfirmedRegistrationsBefore deletes unconfirmed registrations
// created before the cutoff and returns how many were removed.
func (r *Repository) DeleteUnconfirmedRegistrationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM registrations WHERE confirmed = FALSE AND created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteRegistrationByID deletes one registration. Returns 0 when it was
// already gone.
func (r *Repository) DeleteRegistrationByID(ctx context.Context, id int64) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM registrations WHERE id = ?`), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConfirmedRegistrations returns id, email and Minecraft name of every
// confirmed registration.
func (r *Repository) ConfirmedRegistrations(ctx context.Context) ([]models.RegistrationSummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var regs []models.RegistrationSummary
	err := r.db.SelectContext(ctx, &regs,
		`SELECT id, email, firstname, minecraft_username, confirmed_at
			FROM registrations WHERE confirmed = TRUE ORDER BY id`)
	return regs, err
}
