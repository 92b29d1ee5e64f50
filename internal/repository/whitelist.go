// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
)

// WhitelistNames returns the player names currently on the whitelist.
func (r *Repository) WhitelistNames(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var names []string
	err := r.db.SelectContext(ctx, &names, `SELECT name FROM whitelist WHERE name <> ''`)
	return names, err
}

// ListWhitelist returns every whitelist entry.
func (r *Repository) ListWhitelist(ctx context.Context) ([]models.WhitelistEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var entries []models.WhitelistEntry
	err := r.db.SelectContext(ctx, &entries, `SELECT uuid, name FROM whitelist ORDER BY name`)
	return entries, err
}

// InsertWhitelistIfMissing adds the player unless an entry with the same UUID
// or name (case-insensitive) exists. The table carries no unique constraint,
// so the insert re-checks absence in the same statement.
func (r *Repository) InsertWhitelistIfMissing(ctx context.Context, uuid, name string) (models.WhitelistInsertResult, error) {
	uuid = strings.TrimSpace(uuid)
	name = strings.TrimSpace(name)
	if uuid == "" || name == "" {
		return models.WhitelistError, fmt.Errorf("whitelist entry requires uuid and name")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.WhitelistError, fmt.Errorf("begin whitelist transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		tx.Rebind(`SELECT EXISTS(SELECT 1 FROM whitelist WHERE uuid = ? OR lower(name) = ?)`),
		uuid, normalize(name))
	if err != nil {
		return models.WhitelistError, fmt.Errorf("look up whitelist entry: %w", err)
	}
	if exists {
		return models.WhitelistAlreadyExists, nil
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO whitelist (uuid, name)
		SELECT CAST(? AS TEXT), CAST(? AS TEXT)
		WHERE NOT EXISTS (SELECT 1 FROM whitelist WHERE uuid = ? OR lower(name) = ?)`),
		uuid, name, uuid, normalize(name))
	if err != nil {
		return models.WhitelistError, fmt.Errorf("insert whitelist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.WhitelistError, fmt.Errorf("insert whitelist entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.WhitelistError, fmt.Errorf("commit whitelist entry: %w", err)
	}

	if affected == 1 {
		return models.WhitelistInserted, nil
	}
	return models.WhitelistAlreadyExists, nil
}
