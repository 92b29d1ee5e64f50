// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates renders the registration pages.
package templates

import (
	"context"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/i18n"
)

//go:generate templ generate

// FormValues refills the registration form after a rejected submission.
type FormValues struct {
	FirstName         string
	LastName          string
	Email             string
	School            string
	MinecraftUsername string
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return i18n.T(ctx, messageID)
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return i18n.TData(ctx, messageID, data)
}

// Locale returns the current locale.
func Locale(ctx context.Context) string {
	return i18n.GetLocale(ctx)
}

func completedText(ctx context.Context, username string, whitelisted bool) string {
	switch {
	case username == "":
		return T(ctx, "completed_generic")
	case whitelisted:
		return TData(ctx, "completed_body", map[string]any{"Username": username})
	default:
		return TData(ctx, "completed_not_whitelisted", map[string]any{"Username": username})
	}
}
