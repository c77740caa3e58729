// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for mindstack.
//
// Handlers always return errors; Run decides how to show them.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/chat"
	"github.com/jeranaias/mindstack-tui/internal/config"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a malformed command line.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nUsage: %s", e.Reason, e.Example)
	}
	return e.Reason
}

// NewUsageError creates a usage error with an example invocation.
func NewUsageError(reason, example string) error {
	return &UsageError{Reason: reason, Example: example}
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	return msg
}

// NewValidationError creates a validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// errAnswerFailed means the chat answer ended with an error frame.
var errAnswerFailed = errors.New("the answer failed")

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes a one-line error with a hint when one applies.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", RenderConditional(ErrorStyle, "Error:"), err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, RenderConditional(DimStyle, hint))
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoSession), errors.Is(err, api.ErrUnauthorized), errors.Is(err, chat.ErrSignedOut):
		return "Run `mindstack login` to sign in."
	case errors.Is(err, auth.ErrNotConfigured):
		return "Set auth.url and auth.anon_key with `mindstack config set`, or run `mindstack dev-server`."
	case errors.Is(err, api.ErrOffline):
		return "Drop --offline (or MINDSTACK_OFFLINE) to make changes."
	}
	return ""
}

// GetExitCode maps an error to an exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	var configErrs config.ValidateErrors
	var netErr net.Error
	var apiErr *api.APIError

	switch {
	case errors.As(err, &usageErr), errors.As(err, &validationErr):
		return ExitUsageError
	case errors.As(err, &configErrs), errors.Is(err, auth.ErrNotConfigured):
		return ExitConfigError
	case errors.Is(err, auth.ErrNoSession),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidCode),
		errors.Is(err, api.ErrUnauthorized),
		errors.Is(err, chat.ErrSignedOut):
		return ExitAuthError
	case errors.As(err, &notFoundErr):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	case errors.As(err, &apiErr) && apiErr.Temporary():
		return ExitNetworkError
	}
	return ExitGeneralError
}
