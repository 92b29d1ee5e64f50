// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// WhitelistEntry mirrors a row of the externally consumed whitelist.
type WhitelistEntry struct {
	UUID string `db:"uuid" json:"uuid"`
	Name string `db:"name" json:"name"`
}

// WhitelistInsertResult is the outcome of an insert-if-missing.
type WhitelistInsertResult string

const (
	WhitelistInserted      WhitelistInsertResult = "inserted"
	WhitelistAlreadyExists WhitelistInsertResult = "already_exists"
	WhitelistError         WhitelistInsertResult = "error"
)

// Granted reports whether the player is on the whitelist after the insert.
func (r WhitelistInsertResult) Granted() bool {
	return r == WhitelistInserted || r == WhitelistAlreadyExists
}
