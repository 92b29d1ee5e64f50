// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/i18n"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/registration"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/templates"
	"github.com/labstack/echo/v4"
)

// registerResponse is the JSON answer for embedded forms.
type registerResponse struct {
	OK       bool     `json:"ok"`
	Redirect string   `json:"redirect,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Index renders the registration form.
func (h *Handlers) Index(c echo.Context) error {
	return Render(c, http.StatusOK, templates.RegisterPage(templates.FormValues{}, nil))
}

// Success renders the "check your inbox" page.
func (h *Handlers) Success(c echo.Context) error {
	return Render(c, http.StatusOK, templates.SuccessPage())
}

// Register handles the registration form, as HTML form post or JSON.
func (h *Handlers) Register(c echo.Context) error {
	var form registration.Form
	ctx := c.Request().Context()
	if err := c.Bind(&form); err != nil {
		slog.Warn("binding registration form failed", "error", err)
		messages := []string{i18n.T(ctx, "error_invalid_request")}
		if wantsJSON(c) {
			return c.JSON(http.StatusBadRequest, registerResponse{OK: false, Errors: messages})
		}
		return Render(c, http.StatusBadRequest, templates.RegisterPage(templates.FormValues{}, messages))
	}

	_, err := h.registrar.Register(ctx, form)
	if err == nil {
		if wantsJSON(c) {
			return c.JSON(http.StatusOK, registerResponse{OK: true, Redirect: "/success"})
		}
		return c.Redirect(http.StatusSeeOther, "/success")
	}

	status := registerStatus(err)
	messages := h.registerMessages(ctx, err)
	if wantsJSON(c) {
		return c.JSON(status, registerResponse{OK: false, Errors: messages})
	}
	form = form.Normalize()
	return Render(c, status, templates.RegisterPage(templates.FormValues{
		FirstName:         form.FirstName,
		LastName:          form.LastName,
		Email:             form.Email,
		School:            form.School,
		MinecraftUsername: form.MinecraftUsername,
	}, messages))
}

func wantsJSON(c echo.Context) bool {
	req := c.Request()
	if strings.EqualFold(req.Header.Get("X-Requested-With"), "fetch") {
		return true
	}
	return strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

func registerStatus(err error) int {
	switch {
	case errors.Is(err, registration.ErrMissingFields),
		errors.Is(err, registration.ErrEmailNotAllowed),
		errors.Is(err, registration.ErrUsernameNotOfficial):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registration.ErrQuotaExceeded),
		errors.Is(err, registration.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, registration.ErrMailFailed):
		return http.StatusAccepted
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handlers) registerMessages(ctx context.Context, err error) []string {
	var (
		verr  *registration.ValidationError
		qerr  *registration.QuotaError
		mferr *registration.MailFailedError
	)
	switch {
	case errors.As(err, &verr):
		messages := make([]string, 0, len(verr.Fields))
		for _, field := range verr.Fields {
			messages = append(messages, i18n.TData(ctx, "error_missing_field", map[string]any{
				"Field": i18n.T(ctx, "field_"+field),
			}))
		}
		return messages
	case errors.Is(err, registration.ErrEmailNotAllowed):
		return []string{i18n.TData(ctx, "error_email_not_allowed", map[string]any{
			"Domains": strings.Join(h.acceptedDomains, ", "),
		})}
	case errors.As(err, &qerr):
		return []string{i18n.TData(ctx, "error_quota_exceeded", map[string]any{"Limit": qerr.Limit})}
	case errors.Is(err, registration.ErrUsernameTaken):
		return []string{i18n.T(ctx, "error_username_taken")}
	case errors.Is(err, registration.ErrUsernameNotOfficial):
		return []string{i18n.T(ctx, "error_username_not_official")}
	case errors.Is(err, registration.ErrAccountCheckFailed):
		return []string{i18n.T(ctx, "error_mojang_unavailable")}
	case errors.As(err, &mferr):
		return []string{i18n.TData(ctx, "error_mail_failed", map[string]any{"Minutes": mferr.WaitingMinutes})}
	default:
		return []string{i18n.T(ctx, "error_internal")}
	}
}
