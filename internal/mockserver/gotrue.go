// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type userBody struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenBody struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         userBody `json:"user"`
}

func (s *Server) tokenFor(a *account) tokenBody {
	now := s.opts.Now()
	access, refresh, exp := s.store.issue(a.id, s.opts.TokenTTL, now)
	return tokenBody{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.opts.TokenTTL / time.Second),
		ExpiresAt:    exp.Unix(),
		User:         userBody{ID: a.id, Email: a.email},
	}
}

// handleToken serves the password and refresh_token grants.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body")
		return
	}

	switch r.URL.Query().Get("grant_type") {
	case "password":
		a, ok := s.store.user(in.Email)
		if !ok || !validateKey(in.Password, a.password) {
			writeAuthError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		writeJSON(w, http.StatusOK, s.tokenFor(a))

	case "refresh_token":
		id, ok := s.store.exchange(in.RefreshToken)
		if !ok {
			writeAuthError(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		a, ok := s.store.userByID(id)
		if !ok {
			writeAuthError(w, http.StatusBadRequest, "user_not_found", "User not found")
			return
		}
		writeJSON(w, http.StatusOK, s.tokenFor(a))

	default:
		writeAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type")
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body")
		return
	}
	if !strings.Contains(in.Email, "@") {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
		return
	}
	if len(in.Password) < 6 {
		writeAuthError(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	a, err := s.store.addUser(in.Email, in.Password)
	if errors.Is(err, errUserExists) {
		writeAuthError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}

	if s.opts.ConfirmEmail {
		writeJSON(w, http.StatusOK, map[string]string{
			"id":                   a.id,
			"email":                a.email,
			"confirmation_sent_at": s.opts.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.tokenFor(a))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := bearerToken(r); ok {
		s.store.revoke(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.userByID(userID(r))
	if !ok {
		writeAuthError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      a.id,
		"email":   a.email,
		"factors": s.store.listFactors(a.id),
	})
}
