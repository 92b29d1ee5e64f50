// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/i18n"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/confirmation"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/token"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/templates"
	"github.com/labstack/echo/v4"
)

// ConfirmPage shows the landing page of a confirmation link. It only decodes
// the token; confirming needs the POST.
func (h *Handlers) ConfirmPage(c echo.Context) error {
	tok := c.Param("token")
	email, err := h.confirmer.Decode(c.Request().Context(), tok)
	if err != nil {
		return h.renderConfirmError(c, err)
	}
	return Render(c, http.StatusOK, templates.ConfirmPage(email, tok))
}

// Confirm redeems the posted token.
func (h *Handlers) Confirm(c echo.Context) error {
	tok := strings.TrimSpace(c.FormValue("token"))
	if tok == "" {
		return RenderError(c, http.StatusBadRequest, i18n.T(c.Request().Context(), "error_token_missing"))
	}

	result, err := h.confirmer.Confirm(c.Request().Context(), tok)
	if err != nil {
		return h.renderConfirmError(c, err)
	}
	return Render(c, http.StatusOK, templates.CompletedPage(result.MinecraftUsername, result.Whitelisted))
}

// Completed renders the generic completion page.
func (h *Handlers) Completed(c echo.Context) error {
	return Render(c, http.StatusOK, templates.CompletedPage("", false))
}

func (h *Handlers) renderConfirmError(c echo.Context, err error) error {
	status, msg := confirmError(c.Request().Context(), err)
	return RenderError(c, status, msg)
}

func confirmError(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusGone, i18n.T(ctx, "error_token_expired")
	case errors.Is(err, token.ErrTokenInvalid):
		return http.StatusBadRequest, i18n.T(ctx, "error_token_invalid")
	case errors.Is(err, confirmation.ErrAlreadyConfirmed):
		return http.StatusConflict, i18n.T(ctx, "error_already_confirmed")
	default:
		return http.StatusServiceUnavailable, i18n.T(ctx, "error_internal")
	}
}
