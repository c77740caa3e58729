// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"time"
)

// RefreshMargin is how close to expiry a token is refreshed before use.
const RefreshMargin = 30 * time.Second

// User is the signed-in account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a GoTrue session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Valid reports whether the access token is usable at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the token expires within RefreshMargin of now.
func (s *Session) NeedsRefresh(now time.Time) bool {
	return s == nil || !now.Add(RefreshMargin).Before(s.ExpiresAt)
}

// Info is a read-only view of the current session, safe to show the user.
type Info struct {
	SignedIn  bool
	Email     string
	UserID    string
	ExpiresAt time.Time
	Valid     bool
}

// TokenSource hands out bearer tokens and can end the session.
// *Client implements it.
type TokenSource interface {
	// Token returns a fresh access token or ErrNoSession.
	Token(ctx context.Context) (string, error)
	// SignOut ends the session and notifies subscribers.
	SignOut(ctx context.Context) error
}

// tokenResponse is the body of /token and /verify responses.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

func (r tokenResponse) session(now time.Time) *Session {
	s := &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		User:         r.User,
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	default:
		s.ExpiresAt = now.Add(time.Hour)
	}
	return s
}
