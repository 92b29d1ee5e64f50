// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies the signed links sent in confirmation mails.
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const tokenName = "email-confirm"

var (
	ErrTokenExpired = errors.New("confirmation token expired")
	ErrTokenInvalid = errors.New("confirmation token invalid")
)

// payload is what a token carries. IssuedAt is checked by Verify, not by
// securecookie, so expiry and tampering stay distinguishable.
type payload struct {
	Email    string `json:"email"`
	IssuedAt int64  `json:"iat"`
}

// Service issues and verifies confirmation tokens.
type Service struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService derives signing and encryption keys from secret.
func NewService(secret string, maxAge time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("token max age must be positive")
	}

	hashKey, err := deriveKey(secret, "hash", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(secret, "block", 32)
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(0)
	codec.MaxLength(0)

	s := &Service{
		codec:  codec,
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func deriveKey(secret, purpose string, size int) ([]byte, error) {
	key := make([]byte, size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("whitelist-registration/"+tokenName+"/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}
	return key, nil
}

// MaxAge returns how long issued tokens stay valid.
func (s *Service) MaxAge() time.Duration {
	return s.maxAge
}

// Issue creates a URL-safe token for the email.
func (s *Service) Issue(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("token requires an email")
	}
	encoded, err := s.codec.Encode(tokenName, payload{
		Email:    email,
		IssuedAt: s.now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding token: %w", err)
	}
	return encoded, nil
}

// Verify returns the email carried by a token.
func (s *Service) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}

	var p payload
	if err := s.codec.Decode(tokenName, token, &p); err != nil {
		return "", ErrTokenInvalid
	}
	if p.Email == "" {
		return "", ErrTokenInvalid
	}

	issued := time.Unix(p.IssuedAt, 0)
	if s.now().Sub(issued) > s.maxAge {
		return "", ErrTokenExpired
	}
	return p.Email, nil
}
