// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package confirmation turns a confirmation link into a confirmed
// registration and a whitelist entry.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/policy"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/repository"
)

var (
	// ErrAlreadyConfirmed means no unconfirmed registration is left for the
	// email: it was confirmed before or swept as stale.
	ErrAlreadyConfirmed = errors.New("no unconfirmed registration for this email")
	ErrTransient        = errors.New("temporary failure")
)

// State is the step a confirmation reached.
type State string

const (
	StateRejected       State = "rejected"
	StateConflict       State = "conflict"
	StateFailed         State = "failed"
	StateConfirmed      State = "confirmed"
	StateNoAccount      State = "confirmed_without_account"
	StateMirrorFailed   State = "confirmed_mirror_failed"
	StateWhitelisted    State = "whitelisted"
	StateAlreadyPresent State = "whitelisted_already_present"
)

// TokenVerifier decodes confirmation tokens.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Store is the part of the repository a confirmation touches.
type Store interface {
	ConfirmLatestUnconfirmed(ctx context.Context, email string) (*models.RegistrationSummary, error)
	InsertWhitelistIfMissing(ctx context.Context, uuid, name string) (models.WhitelistInsertResult, error)
}

// AccountResolver maps a player name to its UUID, "" when unknown.
type AccountResolver interface {
	ResolveID(ctx context.Context, name string) (string, error)
}

// Result describes a successful confirmation.
type Result struct {
	Email             string
	MinecraftUsername string
	FirstName         string
	Whitelisted       bool
	Mirror            models.WhitelistInsertResult
	State             State
}

type Service struct {
	tokens   TokenVerifier
	store    Store
	accounts AccountResolver
	metrics  *metrics.Metrics
}

func NewService(tokens TokenVerifier, store Store, accounts AccountResolver, m *metrics.Metrics) *Service {
	return &Service{tokens: tokens, store: store, accounts: accounts, metrics: m}
}

// Decode returns the email a token was issued for. It never touches the store.
func (s *Service) Decode(_ context.Context, token string) (string, error) {
	email, err := s.tokens.Verify(token)
	if err != nil {
		slog.Info("confirmation token rejected", "error", err)
		return "", err
	}
	return email, nil
}

// Confirm confirms the newest unconfirmed registration of the token's email
// and mirrors the player into the whitelist. A confirmation stays committed
// even when the player cannot be whitelisted.
func (s *Service) Confirm(ctx context.Context, token string) (*Result, error) {
	result, state, err := s.confirm(ctx, token)
	s.metrics.ConfirmationOutcome(string(state))
	return result, err
}

func (s *Service) confirm(ctx context.Context, token string) (*Result, State, error) {
	email, err := s.Decode(ctx, token)
	if err != nil {
		return nil, StateRejected, err
	}
	log := slog.With("email", policy.MaskEmail(email))

	row, err := s.store.ConfirmLatestUnconfirmed(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("nothing left to confirm")
		return nil, StateConflict, ErrAlreadyConfirmed
	}
	if err != nil {
		log.Error("confirming registration failed", "error", err)
		return nil, StateFailed, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	log = log.With("registration_id", row.ID, "username", row.MinecraftUsername)
	log.Info("registration confirmed")

	result := &Result{
		Email:             row.Email,
		MinecraftUsername: row.MinecraftUsername,
		FirstName:         row.FirstName,
		Mirror:            models.WhitelistError,
		State:             StateConfirmed,
	}

	uuid, err := s.accounts.ResolveID(ctx, row.MinecraftUsername)
	if err != nil || uuid == "" {
		log.Error("no minecraft account found, player not whitelisted", "error", err)
		result.State = StateNoAccount
		return result, result.State, nil
	}

	mirror, err := s.store.InsertWhitelistIfMissing(ctx, uuid, row.MinecraftUsername)
	result.Mirror = mirror
	s.metrics.WhitelistInsert(string(mirror))
	if err != nil || !mirror.Granted() {
		log.Error("writing whitelist entry failed", "uuid", uuid, "error", err)
		result.State = StateMirrorFailed
		return result, result.State, nil
	}

	result.Whitelisted = true
	if mirror == models.WhitelistAlreadyExists {
		result.State = StateAlreadyPresent
		log.Info("player already on the whitelist", "uuid", uuid)
	} else {
		result.State = StateWhitelisted
		log.Info("player added to the whitelist", "uuid", uuid)
	}
	return result, result.State, nil
}
