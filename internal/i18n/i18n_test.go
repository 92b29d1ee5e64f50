// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	require.NoError(t, i18n.Init())

	langs := i18n.SupportedLanguages()
	require.Len(t, langs, 2)
	assert.Equal(t, language.German, langs[0])
}

func TestT(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "Invalid confirmation link.", i18n.T(ctx, "error_token_invalid"))
}

func TestT_German(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "Ungültiger Bestätigungslink.", i18n.T(ctx, "error_token_invalid"))
}

func TestT_RegionalVariant(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.MustParse("de-CH"))

	assert.Equal(t, "de", i18n.GetLocale(ctx))
	assert.Equal(t, "Fehlender Token.", i18n.T(ctx, "error_token_missing"))
}

func TestT_UnknownKey(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	result := i18n.T(ctx, "unknown_key_that_does_not_exist")
	assert.Equal(t, "unknown_key_that_does_not_exist", result)
}

func TestT_NoLocaleContext(t *testing.T) {
	require.NoError(t, i18n.Init())

	result := i18n.T(context.Background(), "error_username_taken")
	assert.Equal(t, "Dieser Minecraft-Benutzername ist bereits registriert.", result)
}

func TestTData(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	result := i18n.TData(ctx, "error_quota_exceeded", map[string]any{"Limit": 3})
	assert.Equal(t, "There are already 3 accounts registered with this email address.", result)
}

func TestTList(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	result := i18n.TList(ctx, []string{"field_firstname", "field_school"}, ", ")
	assert.Equal(t, "First name, School", result)
}

func TestEveryMessageTranslated(t *testing.T) {
	require.NoError(t, i18n.Init())

	en := i18n.WithLocale(context.Background(), language.English)
	de := i18n.WithLocale(context.Background(), language.German)

	ids := []string{
		"page_title_register", "success_title", "confirm_title", "completed_title",
		"error_title", "error_internal", "error_already_confirmed",
		"email_confirmation_subject", "email_admin_alert_subject",
	}
	for _, id := range ids {
		assert.NotEqual(t, id, i18n.T(en, id), id)
		assert.NotEqual(t, id, i18n.T(de, id), id)
		assert.NotEqual(t, i18n.T(en, id), i18n.T(de, id), id)
	}
}

func TestMatchLanguage(t *testing.T) {
	require.NoError(t, i18n.Init())

	tests := []struct {
		expected       language.Tag
		acceptLanguage string
	}{
		{language.English, "en"},
		{language.English, "en-US"},
		{language.German, "de"},
		{language.German, "de-CH"},
		{language.German, "de-AT"},
		{language.German, "fr"}, // fallback to German
		{language.German, ""},   // empty defaults to German
		{language.German, "de, en;q=0.9"},
		{language.English, "en, de;q=0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.acceptLanguage, func(t *testing.T) {
			tag := i18n.MatchLanguage(tt.acceptLanguage)
			base, _ := tag.Base()
			want, _ := tt.expected.Base()
			assert.Equal(t, want, base)
		})
	}
}

func TestGetLocale_Default(t *testing.T) {
	assert.Equal(t, "de", i18n.GetLocale(context.Background()))
}
