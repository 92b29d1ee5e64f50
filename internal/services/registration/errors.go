// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package registration

import (
	"errors"
	"strings"
)

var (
	ErrMissingFields       = errors.New("required fields missing")
	ErrEmailNotAllowed     = errors.New("email address not allowed")
	ErrQuotaExceeded       = errors.New("too many registrations for this email")
	ErrUsernameTaken       = errors.New("minecraft username already registered")
	ErrUsernameNotOfficial = errors.New("minecraft username is not an official account")
	ErrAccountCheckFailed  = errors.New("minecraft account could not be verified")
	ErrTransient           = errors.New("temporary failure")
	ErrMailFailed          = errors.New("confirmation mail could not be sent")
)

// ValidationError lists the form fields that were left empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingFields
}

// QuotaError carries the limit that was hit.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return ErrQuotaExceeded.Error()
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// MailFailedError is returned when the registration was stored but the
// confirmation mail was not delivered.
type MailFailedError struct {
	WaitingMinutes int
	AdminNotified  bool
	Err            error
}

func (e *MailFailedError) Error() string {
	return ErrMailFailed.Error() + ": " + e.Err.Error()
}

func (e *MailFailedError) Unwrap() []error {
	return []error{ErrMailFailed, e.Err}
}
