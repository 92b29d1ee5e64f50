// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package policy decides which email addresses may register and how many
// Minecraft accounts each of them may hold.
package policy

import (
	"strings"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
)

// DefaultMaxUsersPerMail applies when the configuration leaves the quota unset.
const DefaultMaxUsersPerMail = 3

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmailAllowed reports whether the address may register. Addresses listed
// in the per-email limits are admitted regardless of their domain.
func IsEmailAllowed(email string, cfg config.PolicyConfig) bool {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if _, ok := cfg.EmailUserLimits[email]; ok {
		return true
	}
	domain := email[at+1:]

	for _, accepted := range cfg.AcceptedDomains {
		accepted = strings.TrimPrefix(NormalizeEmail(accepted), "@")
		if accepted == "" {
			continue
		}
		if domain == accepted {
			return true
		}
		if cfg.AllowSubdomains && strings.HasSuffix(domain, "."+accepted) {
			return true
		}
	}
	return false
}

// MaxUsersPerMail returns how many registrations the address may hold.
func MaxUsersPerMail(email string, cfg config.PolicyConfig) int {
	if limit, ok := cfg.EmailUserLimits[NormalizeEmail(email)]; ok {
		return limit
	}
	if cfg.MaxUsersPerMail > 0 {
		return cfg.MaxUsersPerMail
	}
	return DefaultMaxUsersPerMail
}

// MaskEmail hides the local part for log output: "max@sluz.ch" becomes
// "m***@sluz.ch".
func MaskEmail(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		if email == "" {
			return ""
		}
		return "***"
	}
	if at == 0 {
		return "***" + email[at:]
	}
	return email[:1] + "***" + email[at:]
}
