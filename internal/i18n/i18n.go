// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n holds the user-facing texts of the registration pages and
// mails. German is the default, English is available via Accept-Language.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

// DefaultLanguage is used when no locale is set or nothing matches.
var DefaultLanguage = language.German

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	supported []language.Tag
	matcher   language.Matcher
)

type localeContextKey struct{}
type localizerContextKey struct{}

// Init loads every embedded translation file. Calling it again reloads them.
func Init() error {
	b := i18n.NewBundle(DefaultLanguage)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(translationFS, "translations/active.*.toml")
	if err != nil {
		return err
	}
	for _, file := range files {
		if _, err := b.LoadMessageFileFS(translationFS, file); err != nil {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}

	// Default language first so the matcher falls back to it.
	tags := []language.Tag{DefaultLanguage}
	for _, tag := range b.LanguageTags() {
		if tag.String() != DefaultLanguage.String() {
			tags = append(tags, tag)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	supported = tags
	matcher = language.NewMatcher(tags)
	return nil
}

func current() *i18n.Bundle {
	mu.RLock()
	b := bundle
	mu.RUnlock()
	if b != nil {
		return b
	}
	if err := Init(); err != nil {
		panic(fmt.Sprintf("i18n: %v", err))
	}
	mu.RLock()
	defer mu.RUnlock()
	return bundle
}

// SupportedLanguages lists the loaded languages, default first.
func SupportedLanguages() []language.Tag {
	current()
	mu.RLock()
	defer mu.RUnlock()
	return append([]language.Tag(nil), supported...)
}

// WithLocale adds the locale to the context.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	base, _ := lang.Base()
	locale := base.String()
	ctx = context.WithValue(ctx, localeContextKey{}, locale)
	localizer := i18n.NewLocalizer(current(), locale, DefaultLanguage.String())
	return context.WithValue(ctx, localizerContextKey{}, localizer)
}

// GetLocale returns the current locale from context.
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeContextKey{}).(string); ok {
		return locale
	}
	base, _ := DefaultLanguage.Base()
	return base.String()
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	msg, err := getLocalizer(ctx).Localize(&i18n.LocalizeConfig{
		MessageID: messageID,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	msg, err := getLocalizer(ctx).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// TList translates each ID and joins them with sep.
func TList(ctx context.Context, messageIDs []string, sep string) string {
	out := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		out = append(out, T(ctx, id))
	}
	return strings.Join(out, sep)
}

// MatchLanguage matches the best language from an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	current()
	mu.RLock()
	m := matcher
	mu.RUnlock()
	tag, _ := language.MatchStrings(m, acceptLanguage)
	return tag
}

func getLocalizer(ctx context.Context) *i18n.Localizer {
	if localizer, ok := ctx.Value(localizerContextKey{}).(*i18n.Localizer); ok {
		return localizer
	}
	return i18n.NewLocalizer(current(), DefaultLanguage.String())
}
