// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"net/http"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/confirmation"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/registration"
	"github.com/labstack/echo/v4"
)

// Registrar runs the registration flow.
type Registrar interface {
	Register(ctx context.Context, form registration.Form) (*models.Registration, error)
}

// Confirmer decodes and redeems confirmation tokens.
type Confirmer interface {
	Decode(ctx context.Context, token string) (string, error)
	Confirm(ctx context.Context, token string) (*confirmation.Result, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	registrar       Registrar
	confirmer       Confirmer
	store           Pinger
	acceptedDomains []string
}

// New creates a new Handlers instance. acceptedDomains is shown when an
// address is rejected.
func New(registrar Registrar, confirmer Confirmer, store Pinger, acceptedDomains []string) *Handlers {
	return &Handlers{
		registrar:       registrar,
		confirmer:       confirmer,
		store:           store,
		acceptedDomains: acceptedDomains,
	}
}

// Health reports whether the store is reachable.
func (h *Handlers) Health(c echo.Context) error {
	if h.store != nil {
		if err := h.store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
