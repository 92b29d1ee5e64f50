// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var (
	configPath = "config.toml"
	configFile = altsrc.NewStringPtrSourcer(&configPath)
)

// MinJobInterval is the lower bound for the reconciliation interval.
const MinJobInterval = time.Minute

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Mojang   MojangConfig
	Policy   PolicyConfig
	Jobs     JobsConfig
	Token    TokenConfig
	Admin    AdminConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host           string
	Port           int
	BaseURL        string
	MaxBodySize    int      // in MB
	AllowedOrigins []string // CORS origins for embedded registration forms
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	Driver  string // sqlite, postgres
	DSN     string
	Timeout time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

type MojangConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// PolicyConfig drives the admission policy.
type PolicyConfig struct { //nolint:govet // fieldalignment not critical for config structs
	AcceptedDomains []string
	AllowSubdomains bool
	MaxUsersPerMail int
	EmailUserLimits map[string]int // keys are normalized emails
}

// JobsConfig controls the reconciliation loop and everything derived from it.
type JobsConfig struct {
	IntervalMinutes       int
	UnconfirmedTTLMinutes int
	TokenMaxAgeMultiplier int
}

type TokenConfig struct {
	Secret string
}

type AdminConfig struct {
	AlertEmail     string
	WaitingMinutes int // shown to users when the confirmation mail could not be sent
}

// Interval returns the sweep interval, never shorter than MinJobInterval.
func (j JobsConfig) Interval() time.Duration {
	d := time.Duration(j.IntervalMinutes) * time.Minute
	if d < MinJobInterval {
		return MinJobInterval
	}
	return d
}

// UnconfirmedTTL is the age after which unconfirmed registrations are purged.
// Falls back to the sweep interval when unset.
func (j JobsConfig) UnconfirmedTTL() time.Duration {
	if j.UnconfirmedTTLMinutes <= 0 {
		return j.Interval()
	}
	return time.Duration(j.UnconfirmedTTLMinutes) * time.Minute
}

// TokenMaxAge is the confirmation link lifetime: sweep interval times the
// configured multiplier.
func (j JobsConfig) TokenMaxAge() time.Duration {
	m := j.TokenMaxAgeMultiplier
	if m <= 0 {
		m = 1
	}
	return j.Interval() * time.Duration(m)
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           cmd.String("host"),
			Port:           int(cmd.Int("port")),
			BaseURL:        cmd.String("base-url"),
			MaxBodySize:    int(cmd.Int("max-body-size")),
			AllowedOrigins: cmd.StringSlice("allowed-origin"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			Driver:  cmd.String("database-driver"),
			DSN:     cmd.String("database-dsn"),
			Timeout: time.Duration(cmd.Int("database-timeout")) * time.Second,
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			Timeout:  time.Duration(cmd.Int("smtp-timeout")) * time.Second,
		},
		Mojang: MojangConfig{
			BaseURL:  cmd.String("mojang-base-url"),
			Timeout:  time.Duration(cmd.Int("mojang-timeout")) * time.Second,
			CacheTTL: time.Duration(cmd.Int("mojang-cache-ttl")) * time.Minute,
		},
		Policy: PolicyConfig{
			AcceptedDomains: cmd.StringSlice("accepted-domain"),
			AllowSubdomains: cmd.Bool("allow-subdomains"),
			MaxUsersPerMail: int(cmd.Int("max-users-per-mail")),
			EmailUserLimits: ParseEmailLimits(cmd.StringSlice("email-user-limit")),
		},
		Jobs: JobsConfig{
			IntervalMinutes:       int(cmd.Int("jobs-interval")),
			UnconfirmedTTLMinutes: int(cmd.Int("jobs-unconfirmed-ttl")),
			TokenMaxAgeMultiplier: int(cmd.Int("token-max-age-multiplier")),
		},
		Token: TokenConfig{
			Secret: cmd.String("token-secret"),
		},
		Admin: AdminConfig{
			AlertEmail:     cmd.String("admin-alert-email"),
			WaitingMinutes: int(cmd.Int("admin-waiting-minutes")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return errors.New("token secret is required")
	}
	if len(c.Policy.AcceptedDomains) == 0 && len(c.Policy.EmailUserLimits) == 0 {
		return errors.New("at least one accepted domain or email override is required")
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// ParseEmailLimits turns "email=limit" entries into a normalized map.
// Entries that do not parse are skipped.
func ParseEmailLimits(entries []string) map[string]int {
	limits := make(map[string]int, len(entries))
	for _, entry := range entries {
		email, raw, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		email = strings.ToLower(strings.TrimSpace(email))
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if !isAddress(email) || err != nil {
			continue
		}
		limits[email] = limit
	}
	return limits
}

// isAddress reports whether s has a non-empty local part and domain.
func isAddress(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "https"
	if IsLocalhost(host) {
		scheme = "http"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in confirmation links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "allowed-origin",
			Usage:   "Origin allowed to post the embedded registration form (repeatable)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ALLOWED_ORIGINS"), toml.TOML("server.allowed_origins", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-driver",
			Value:   "sqlite",
			Usage:   "Database driver (sqlite, postgres)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DRIVER"), toml.TOML("database.driver", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/registrations.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.IntFlag{
			Name:    "database-timeout",
			Value:   5,
			Usage:   "Timeout in seconds for a single database operation",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_TIMEOUT"), toml.TOML("database.timeout", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "KSR Minecraft Team",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP (implicit TLS on port 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-timeout",
			Value:   15,
			Usage:   "SMTP dial and send timeout in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TIMEOUT"), toml.TOML("smtp.timeout", configFile)),
		},
		// Mojang flags
		&cli.StringFlag{
			Name:    "mojang-base-url",
			Value:   "https://api.mojang.com",
			Usage:   "Mojang profile API base URL",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MOJANG_BASE_URL"), toml.TOML("mojang.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "mojang-timeout",
			Value:   5,
			Usage:   "Mojang API timeout in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MOJANG_TIMEOUT"), toml.TOML("mojang.timeout", configFile)),
		},
		&cli.IntFlag{
			Name:    "mojang-cache-ttl",
			Value:   60,
			Usage:   "Minutes a resolved Mojang UUID is cached",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MOJANG_CACHE_TTL"), toml.TOML("mojang.cache_ttl", configFile)),
		},
		// Policy flags
		&cli.StringSliceFlag{
			Name:    "accepted-domain",
			Value:   []string{"sluz.ch"},
			Usage:   "Email domain accepted for registration (repeatable)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCEPTED_DOMAINS"), toml.TOML("policy.accepted_domains", configFile)),
		},
		&cli.BoolFlag{
			Name:    "allow-subdomains",
			Usage:   "Also accept subdomains of the accepted domains",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ALLOW_SUBDOMAINS"), toml.TOML("policy.allow_subdomains", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-users-per-mail",
			Value:   3,
			Usage:   "Default number of accounts per email address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_USERS_PER_MAIL"), toml.TOML("policy.max_users_per_mail", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "email-user-limit",
			Usage:   "Per-email override as email=limit, admits the email regardless of domain (repeatable)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_USER_LIMITS"), toml.TOML("policy.email_user_limits", configFile)),
		},
		// Jobs flags
		&cli.IntFlag{
			Name:    "jobs-interval",
			Value:   10,
			Usage:   "Minutes between reconciliation passes (minimum 1)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JOBS_INTERVAL"), toml.TOML("jobs.interval", configFile)),
		},
		&cli.IntFlag{
			Name:    "jobs-unconfirmed-ttl",
			Usage:   "Minutes before an unconfirmed registration is purged (defaults to the interval)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JOBS_UNCONFIRMED_TTL"), toml.TOML("jobs.unconfirmed_ttl", configFile)),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "Secret used to sign confirmation links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_SECRET"), toml.TOML("token.secret", configFile)),
		},
		&cli.IntFlag{
			Name:    "token-max-age-multiplier",
			Value:   10,
			Usage:   "Confirmation link lifetime as a multiple of the jobs interval",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_MAX_AGE_MULTIPLIER"), toml.TOML("token.max_age_multiplier", configFile)),
		},
		// Admin flags
		&cli.StringFlag{
			Name:    "admin-alert-email",
			Usage:   "Address notified when a confirmation mail cannot be sent",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ADMIN_ALERT_EMAIL"), toml.TOML("admin.alert_email", configFile)),
		},
		&cli.IntFlag{
			Name:    "admin-waiting-minutes",
			Value:   10,
			Usage:   "Minutes users are asked to wait for the team after a mail failure",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ADMIN_WAITING_MINUTES"), toml.TOML("admin.waiting_minutes", configFile)),
		},
	}
}
