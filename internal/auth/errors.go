// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoSession means nobody is signed in, or the session could not be refreshed.
	ErrNoSession = errors.New("not signed in")

	// ErrInvalidCredentials is returned by SignIn for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrNotConfigured is returned when the auth URL or anon key is missing.
	ErrNotConfigured = errors.New("auth provider not configured: set auth.url and auth.anon_key")

	// ErrInvalidCode is returned when a TOTP code is rejected.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrCorruptSession is returned when the stored session cannot be opened.
	ErrCorruptSession = errors.New("stored session is unreadable")
)

// Error is an error response from the auth provider.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth error %d: %s", e.Status, e.Message)
}

// Unwrap maps provider responses onto the package sentinels.
func (e *Error) Unwrap() error {
	switch {
	case e.Code == "invalid_credentials" || (e.Code == "invalid_grant" && e.Status == http.StatusBadRequest):
		return ErrInvalidCredentials
	case e.Code == "mfa_verification_failed":
		return ErrInvalidCode
	case e.Status == http.StatusUnauthorized:
		return ErrNoSession
	}
	return nil
}

// errorBody covers both the old and the current GoTrue error shapes.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) toError(status int) *Error {
	e := &Error{Status: status}

	switch {
	case b.ErrorCode != "":
		e.Code = b.ErrorCode
	case b.ErrorName != "":
		e.Code = b.ErrorName
	default:
		if s, ok := b.Code.(string); ok {
			e.Code = s
		}
	}

	for _, m := range []string{b.Msg, b.Message, b.ErrorDescription} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
