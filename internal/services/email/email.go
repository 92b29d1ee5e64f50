// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/i18n"
	"github.com/wneessen/go-mail"
)

const defaultTimeout = 15 * time.Second

// SendFunc delivers a finished message.
type SendFunc func(ctx context.Context, msg *mail.Msg) error

// Service sends confirmation and admin alert mails.
type Service struct {
	cfg     *config.SMTPConfig
	baseURL string
	linkTTL time.Duration
	sendFn  SendFunc
}

// Option configures a Service.
type Option func(*Service)

// WithSender replaces SMTP delivery, e.g. for tests.
func WithSender(fn SendFunc) Option {
	return func(s *Service) {
		s.sendFn = fn
	}
}

// NewService creates a new email service. linkTTL is printed in the
// confirmation mail.
func NewService(cfg *config.SMTPConfig, baseURL string, linkTTL time.Duration, opts ...Option) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	s := &Service{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		linkTTL: linkTTL,
	}
	s.sendFn = s.dialAndSend
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConfirmationLink builds the URL of the confirmation landing page.
func (s *Service) ConfirmationLink(token string) string {
	return s.baseURL + "/confirm_page/" + token
}

// SendConfirmation mails the confirmation link to a new registrant.
func (s *Service) SendConfirmation(ctx context.Context, toEmail, firstName, token string) error {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = i18n.T(ctx, "email_greeting_fallback")
	}

	subject := i18n.T(ctx, "email_confirmation_subject")
	body := i18n.TData(ctx, "email_confirmation_body", map[string]any{
		"Name":    name,
		"Link":    s.ConfirmationLink(token),
		"Minutes": int(s.linkTTL.Minutes()),
		"Sender":  s.senderName(),
	})

	return s.send(ctx, toEmail, subject, body)
}

// Alert describes a registration whose confirmation mail could not be sent.
type Alert struct {
	FirstName         string
	LastName          string
	Email             string
	School            string
	MinecraftUsername string
	Token             string
	Err               error
}

// SendAdminAlert tells the team about a failed confirmation mail so they can
// follow up by hand.
func (s *Service) SendAdminAlert(ctx context.Context, adminEmail string, alert Alert) error {
	if adminEmail == "" {
		return fmt.Errorf("admin alert address is not configured")
	}

	errText := ""
	if alert.Err != nil {
		errText = alert.Err.Error()
	}

	subject := i18n.TData(ctx, "email_admin_alert_subject", map[string]any{
		"Username": alert.MinecraftUsername,
	})
	body := i18n.TData(ctx, "email_admin_alert_body", map[string]any{
		"FirstName": alert.FirstName,
		"LastName":  alert.LastName,
		"Email":     alert.Email,
		"School":    alert.School,
		"Username":  alert.MinecraftUsername,
		"Link":      s.ConfirmationLink(alert.Token),
		"Error":     errText,
	})

	return s.send(ctx, adminEmail, subject, body)
}

func (s *Service) senderName() string {
	if s.cfg.FromName != "" {
		return s.cfg.FromName
	}
	return s.cfg.From
}

func (s *Service) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return s.sendFn(ctx, msg)
}

// dialAndSend delivers via SMTP using go-mail.
func (s *Service) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(timeout),
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
