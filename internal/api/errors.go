// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the backend rejected the bearer token.
	ErrUnauthorized = errors.New("session expired or invalid: please sign in again")

	// ErrNameRequired is returned by CreateProject for a blank name.
	ErrNameRequired = errors.New("project name is required")

	// ErrOffline is returned for writes while running offline.
	ErrOffline = errors.New("not available offline")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// errorBody covers the shapes the backend uses for error messages.
type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (b errorBody) message() string {
	for _, m := range []string{b.Error, b.Detail, b.Message} {
		if m != "" {
			return m
		}
	}
	return ""
}
