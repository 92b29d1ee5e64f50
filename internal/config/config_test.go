// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestJobsConfig_Interval(t *testing.T) {
	tests := []struct {
		name     string
		minutes  int
		expected time.Duration
	}{
		{"configured", 10, 10 * time.Minute},
		{"zero is floored", 0, time.Minute},
		{"negative is floored", -5, time.Minute},
		{"one minute", 1, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := JobsConfig{IntervalMinutes: tt.minutes}
			assert.Equal(t, tt.expected, j.Interval())
		})
	}
}

func TestJobsConfig_TokenMaxAge(t *testing.T) {
	j := JobsConfig{IntervalMinutes: 10, TokenMaxAgeMultiplier: 10}
	assert.Equal(t, 100*time.Minute, j.TokenMaxAge())

	// Floored interval still feeds the derivation
	j = JobsConfig{IntervalMinutes: 0, TokenMaxAgeMultiplier: 3}
	assert.Equal(t, 3*time.Minute, j.TokenMaxAge())

	j = JobsConfig{IntervalMinutes: 5}
	assert.Equal(t, 5*time.Minute, j.TokenMaxAge())
}

func TestJobsConfig_UnconfirmedTTL(t *testing.T) {
	assert.Equal(t, 10*time.Minute, JobsConfig{IntervalMinutes: 10}.UnconfirmedTTL())
	assert.Equal(t, 30*time.Minute, JobsConfig{IntervalMinutes: 10, UnconfirmedTTLMinutes: 30}.UnconfirmedTTL())
}

func TestParseEmailLimits(t *testing.T) {
	limits := ParseEmailLimits([]string{
		"Staff@Example.com=10",
		" lehrer@sluz.ch = 5 ",
		"broken",
		"nolimit@sluz.ch=abc",
		"=4",
		"staff=5",
		"@sluz.ch=2",
		"nodomain@=2",
	})

	assert.Equal(t, map[string]int{
		"staff@example.com": 10,
		"lehrer@sluz.ch":    5,
	}, limits)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Token:    TokenConfig{Secret: "s3cret"},
			Policy:   PolicyConfig{AcceptedDomains: []string{"sluz.ch"}},
			Database: DatabaseConfig{Driver: "sqlite"},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Token.Secret = ""
	assert.ErrorContains(t, cfg.Validate(), "token secret")

	cfg = valid()
	cfg.Policy.AcceptedDomains = nil
	assert.Error(t, cfg.Validate())
	cfg.Policy.EmailUserLimits = map[string]int{"staff@example.com": 2}
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unsupported database driver")
}

func TestNewFromCLI_Defaults(t *testing.T) {
	var cfg *Config
	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg = NewFromCLI(cmd)
			return nil
		},
	}

	err := cmd.Run(context.Background(), []string{"test", "--config", "does-not-exist.toml"})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Mojang.Timeout)
	assert.Equal(t, []string{"sluz.ch"}, cfg.Policy.AcceptedDomains)
	assert.Equal(t, 3, cfg.Policy.MaxUsersPerMail)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.Interval())
	assert.Equal(t, 100*time.Minute, cfg.Jobs.TokenMaxAge())
}

func TestNewFromCLI_Overrides(t *testing.T) {
	var cfg *Config
	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg = NewFromCLI(cmd)
			return nil
		},
	}

	err := cmd.Run(context.Background(), []string{
		"test",
		"--config", "does-not-exist.toml",
		"--host", "register.example.com",
		"--port", "443",
		"--email-user-limit", "staff@example.com=7",
		"--jobs-interval", "0",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://register.example.com", cfg.Server.BaseURL)
	assert.Equal(t, map[string]int{"staff@example.com": 7}, cfg.Policy.EmailUserLimits)
	assert.Equal(t, time.Minute, cfg.Jobs.Interval())
}
