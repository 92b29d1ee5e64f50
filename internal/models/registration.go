// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Registration is one submitted registration attempt. Only the confirmation
// fields ever change after insert.
type Registration struct { //nolint:govet // fieldalignment: readability over optimization
	ID                int64      `db:"id" json:"id"`
	FirstName         string     `db:"firstname" json:"firstname"`
	LastName          string     `db:"lastname" json:"lastname"`
	Email             string     `db:"email" json:"email"`
	School            string     `db:"school" json:"school"`
	MinecraftUsername string     `db:"minecraft_username" json:"minecraft_username"`
	Confirmed         bool       `db:"confirmed" json:"confirmed"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	ConfirmedAt       *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// RegistrationSummary is the subset of a registration needed after
// confirmation and by the reconciliation sweeps.
type RegistrationSummary struct {
	ID                int64      `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	FirstName         string     `db:"firstname" json:"firstname"`
	MinecraftUsername string     `db:"minecraft_username" json:"minecraft_username"`
	ConfirmedAt       *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
}
