// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

// challengeTTL is how long a challenge may wait for its code.
const challengeTTL = 5 * time.Minute

type factor struct {
	id           string
	friendlyName string
	secret       string
	verified     bool
}

type factorBody struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
	FactorType   string `json:"factor_type"`
	Status       string `json:"status"`
}

// =============================================================================
// STORE
// =============================================================================

func (s *store) addFactor(userID string, f *factor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factors[userID] = append(s.factors[userID], f)
}

func (s *store) factor(userID, factorID string) (*factor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.factors[userID] {
		if f.id == factorID {
			return f, true
		}
	}
	return nil, false
}

func (s *store) listFactors(userID string) []factorBody {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]factorBody, 0, len(s.factors[userID]))
	for _, f := range s.factors[userID] {
		status := "unverified"
		if f.verified {
			status = "verified"
		}
		out = append(out, factorBody{ID: f.id, FriendlyName: f.friendlyName, FactorType: "totp", Status: status})
	}
	return out
}

func (s *store) challenge(factorID string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[id] = factorID
	return id
}

// consumeChallenge reports whether challengeID was issued for factorID.
// A challenge can be used once.
func (s *store) consumeChallenge(challengeID, factorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.challenges[challengeID]
	if ok {
		delete(s.challenges, challengeID)
	}
	return ok && got == factorID
}

func (s *store) markVerified(f *factor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.verified = true
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleEnrollFactor(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FactorType   string `json:"factor_type"`
		Issuer       string `json:"issuer"`
		FriendlyName string `json:"friendly_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body")
		return
	}
	if in.FactorType != "totp" {
		writeAuthError(w, http.StatusBadRequest, "validation_failed", "factor_type must be totp")
		return
	}
	a, ok := s.store.userByID(userID(r))
	if !ok {
		writeAuthError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}

	issuer := in.Issuer
	if issuer == "" {
		issuer = "MindStack"
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: a.email})
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}

	f := &factor{id: uuid.NewString(), friendlyName: in.FriendlyName, secret: key.Secret()}
	s.store.addFactor(a.id, f)
	s.logger.Debug("factor enrolled", "user", a.id, "factor", f.id)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            f.id,
		"type":          "totp",
		"friendly_name": f.friendlyName,
		"totp": map[string]string{
			"qr_code": "",
			"secret":  key.Secret(),
			"uri":     key.URL(),
		},
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	factorID := chi.URLParam(r, "factorID")
	if _, ok := s.store.factor(userID(r), factorID); !ok {
		writeAuthError(w, http.StatusNotFound, "mfa_factor_not_found", "Factor not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         s.store.challenge(factorID),
		"expires_at": s.opts.Now().Add(challengeTTL).Unix(),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeAuthError(w, http.StatusBadRequest, "bad_json", "Could not parse request body")
		return
	}

	uid := userID(r)
	factorID := chi.URLParam(r, "factorID")
	f, ok := s.store.factor(uid, factorID)
	if !ok {
		writeAuthError(w, http.StatusNotFound, "mfa_factor_not_found", "Factor not found")
		return
	}
	if !s.store.consumeChallenge(in.ChallengeID, factorID) {
		writeAuthError(w, http.StatusUnprocessableEntity, "mfa_challenge_expired", "Challenge not found or already used")
		return
	}
	if !totp.Validate(in.Code, f.secret) {
		writeAuthError(w, http.StatusUnprocessableEntity, "mfa_verification_failed", "Invalid TOTP code entered")
		return
	}
	s.store.markVerified(f)

	a, ok := s.store.userByID(uid)
	if !ok {
		writeAuthError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, s.tokenFor(a))
}
