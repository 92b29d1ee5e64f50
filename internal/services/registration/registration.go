// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package registration accepts new whitelist registrations: it validates the
// form, applies the admission policy, stores the registration unconfirmed and
// mails the confirmation link.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/models"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/policy"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/email"
)

// Store is the part of the repository the flow needs.
type Store interface {
	CountRegistrationsByEmail(ctx context.Context, email string) (int64, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) error
}

// AccountChecker verifies Minecraft account names.
type AccountChecker interface {
	IsOfficial(ctx context.Context, name string) (bool, error)
}

// TokenIssuer creates confirmation tokens.
type TokenIssuer interface {
	Issue(email string) (string, error)
}

// Mailer delivers confirmation and alert mails.
type Mailer interface {
	SendConfirmation(ctx context.Context, toEmail, firstName, token string) error
	SendAdminAlert(ctx context.Context, adminEmail string, alert email.Alert) error
}

// Form is the submitted registration form.
type Form struct {
	FirstName         string `form:"firstname" json:"firstname"`
	LastName          string `form:"lastname" json:"lastname"`
	Email             string `form:"email" json:"email"`
	School            string `form:"school" json:"school"`
	MinecraftUsername string `form:"minecraft_username" json:"minecraft_username"`
}

// Normalize trims every field.
func (f Form) Normalize() Form {
	return Form{
		FirstName:         strings.TrimSpace(f.FirstName),
		LastName:          strings.TrimSpace(f.LastName),
		Email:             strings.TrimSpace(f.Email),
		School:            strings.TrimSpace(f.School),
		MinecraftUsername: strings.TrimSpace(f.MinecraftUsername),
	}
}

// Validate returns a *ValidationError naming the empty fields, in form order.
func (f Form) Validate() error {
	var missing []string
	check := func(value, field string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	check(f.FirstName, "firstname")
	check(f.LastName, "lastname")
	check(f.Email, "email")
	check(f.School, "school")
	check(f.MinecraftUsername, "minecraft_username")

	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

type Service struct {
	store    Store
	accounts AccountChecker
	tokens   TokenIssuer
	mailer   Mailer
	policy   config.PolicyConfig
	admin    config.AdminConfig
	metrics  *metrics.Metrics
}

func NewService(store Store, accounts AccountChecker, tokens TokenIssuer, mailer Mailer,
	policyCfg config.PolicyConfig, adminCfg config.AdminConfig, m *metrics.Metrics,
) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		tokens:   tokens,
		mailer:   mailer,
		policy:   policyCfg,
		admin:    adminCfg,
		metrics:  m,
	}
}

// Register runs the registration flow. On success, and on *MailFailedError,
// the stored registration is returned.
func (s *Service) Register(ctx context.Context, form Form) (*models.Registration, error) {
	reg, err := s.register(ctx, form.Normalize())
	s.metrics.RegistrationOutcome(outcome(err))
	return reg, err
}

func (s *Service) register(ctx context.Context, form Form) (*models.Registration, error) {
	masked := policy.MaskEmail(form.Email)
	log := slog.With("email", masked, "username", form.MinecraftUsername)
	log.Info("registration submitted", "school", form.School)

	if err := form.Validate(); err != nil {
		log.Info("registration rejected", "reason", err)
		return nil, err
	}

	if !policy.IsEmailAllowed(form.Email, s.policy) {
		log.Info("registration rejected", "reason", "email not allowed")
		return nil, ErrEmailNotAllowed
	}

	count, err := s.store.CountRegistrationsByEmail(ctx, form.Email)
	if err != nil {
		log.Error("counting registrations failed", "error", err)
		return nil, fmt.Errorf("%w: counting registrations: %v", ErrTransient, err)
	}
	limit := policy.MaxUsersPerMail(form.Email, s.policy)
	if count >= int64(limit) {
		log.Info("registration rejected", "reason", "quota", "count", count, "limit", limit)
		return nil, &QuotaError{Limit: limit}
	}

	exists, err := s.store.UsernameExists(ctx, form.MinecraftUsername)
	if err != nil {
		log.Error("checking username failed", "error", err)
		return nil, fmt.Errorf("%w: checking username: %v", ErrTransient, err)
	}
	if exists {
		log.Info("registration rejected", "reason", "username taken")
		return nil, ErrUsernameTaken
	}

	official, err := s.accounts.IsOfficial(ctx, form.MinecraftUsername)
	if err != nil {
		log.Error("minecraft account check failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAccountCheckFailed, err)
	}
	if !official {
		log.Info("registration rejected", "reason", "not an official account")
		return nil, ErrUsernameNotOfficial
	}

	token, err := s.tokens.Issue(form.Email)
	if err != nil {
		log.Error("issuing token failed", "error", err)
		return nil, fmt.Errorf("%w: issuing token: %v", ErrTransient, err)
	}

	reg := &models.Registration{
		FirstName:         form.FirstName,
		LastName:          form.LastName,
		Email:             form.Email,
		School:            form.School,
		MinecraftUsername: form.MinecraftUsername,
	}
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		log.Error("storing registration failed", "error", err)
		return nil, fmt.Errorf("%w: storing registration: %v", ErrTransient, err)
	}
	log = log.With("registration_id", reg.ID)

	if err := s.mailer.SendConfirmation(ctx, reg.Email, reg.FirstName, token); err != nil {
		log.Error("sending confirmation mail failed", "error", err)
		return reg, s.mailFailed(ctx, log, reg, token, err)
	}

	log.Info("registration stored, waiting for confirmation")
	return reg, nil
}

// mailFailed keeps the registration and tries to alert the team.
func (s *Service) mailFailed(ctx context.Context, log *slog.Logger, reg *models.Registration, token string, cause error) error {
	notified := false
	if s.admin.AlertEmail == "" {
		log.Warn("no admin alert address configured")
	} else {
		err := s.mailer.SendAdminAlert(ctx, s.admin.AlertEmail, email.Alert{
			FirstName:         reg.FirstName,
			LastName:          reg.LastName,
			Email:             reg.Email,
			School:            reg.School,
			MinecraftUsername: reg.MinecraftUsername,
			Token:             token,
			Err:               cause,
		})
		if err != nil {
			log.Error("sending admin alert failed", "error", err)
		} else {
			notified = true
			log.Info("admin alert sent")
		}
	}

	waiting := s.admin.WaitingMinutes
	if waiting <= 0 {
		waiting = 10
	}
	return &MailFailedError{WaitingMinutes: waiting, AdminNotified: notified, Err: cause}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, ErrEmailNotAllowed):
		return "email_not_allowed"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrUsernameTaken):
		return "username_taken"
	case errors.Is(err, ErrUsernameNotOfficial):
		return "not_official"
	case errors.Is(err, ErrAccountCheckFailed):
		return "account_check_failed"
	case errors.Is(err, ErrMailFailed):
		return "mail_failed"
	default:
		return "error"
	}
}
