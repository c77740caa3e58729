// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPIssuer is shown in authenticator apps.
const TOTPIssuer = "MindStack"

// Enrollment is a TOTP factor that still needs its first code.
type Enrollment struct {
	FactorID string
	Secret   string
	URI      string
	Issuer   string
	Account  string
	// QRCode is the SVG data URI returned by the provider.
	QRCode string
}

// Factor is an MFA factor on the account.
type Factor struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendly_name"`
	FactorType   string `json:"factor_type"`
	Status       string `json:"status"`
}

type enrollment struct {
	factorID string
	key      *otp.Key
}

// EnrollTOTP registers a new TOTP factor. The returned URI can be loaded
// into an authenticator app; the factor stays unverified until
// ChallengeAndVerify succeeds with a code from that app.
func (c *Client) EnrollTOTP(ctx context.Context, friendlyName string) (*Enrollment, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]string{
		"factor_type":   "totp",
		"issuer":        TOTPIssuer,
		"friendly_name": friendlyName,
	}
	var resp struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		TOTP struct {
			QRCode string `json:"qr_code"`
			Secret string `json:"secret"`
			URI    string `json:"uri"`
		} `json:"totp"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/factors", token, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to enroll factor: %w", err)
	}

	key, err := otp.NewKeyFromURL(resp.TOTP.URI)
	if err != nil {
		return nil, fmt.Errorf("provider returned an invalid otpauth URI: %w", err)
	}
	if resp.TOTP.Secret != "" && !strings.EqualFold(key.Secret(), resp.TOTP.Secret) {
		return nil, fmt.Errorf("provider returned mismatched TOTP secrets")
	}

	c.mu.Lock()
	c.pending = &enrollment{factorID: resp.ID, key: key}
	c.mu.Unlock()

	return &Enrollment{
		FactorID: resp.ID,
		Secret:   key.Secret(),
		URI:      key.URL(),
		Issuer:   key.Issuer(),
		Account:  key.AccountName(),
		QRCode:   resp.TOTP.QRCode,
	}, nil
}

// ChallengeAndVerify proves possession of a factor. On success the provider
// issues an upgraded session, which replaces the current one.
//
// For a factor enrolled by this client the code is first checked locally,
// so a mistyped code fails with ErrInvalidCode without a round trip.
func (c *Client) ChallengeAndVerify(ctx context.Context, factorID, code string) error {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if factorID == "" || code == "" {
		return ErrInvalidCode
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending != nil && pending.factorID == factorID {
		if !totp.Validate(code, pending.key.Secret()) {
			return ErrInvalidCode
		}
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	base := "/auth/v1/factors/" + url.PathEscape(factorID)
	var challenge struct {
		ID        string `json:"id"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := c.do(ctx, http.MethodPost, base+"/challenge", token, nil, &challenge); err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	var resp tokenResponse
	body := map[string]string{"challenge_id": challenge.ID, "code": code}
	if err := c.do(ctx, http.MethodPost, base+"/verify", token, body, &resp); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if resp.AccessToken != "" {
		c.mu.Lock()
		prev := c.session
		c.mu.Unlock()

		next := resp.session(c.now())
		if next.User.ID == "" && prev != nil {
			next.User = prev.User
		}
		if err := c.setSession(next); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.pending != nil && c.pending.factorID == factorID {
		c.pending = nil
	}
	c.mu.Unlock()
	c.logger.Info("mfa factor verified", "factor", factorID)
	return nil
}

// Factors lists the MFA factors on the signed-in account.
func (c *Client) Factors(ctx context.Context) ([]Factor, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	var user struct {
		Factors []Factor `json:"factors"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", token, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user.Factors, nil
}

// CurrentCode returns the code an authenticator would show for e at t.
func (e *Enrollment) CurrentCode(t time.Time) (string, error) {
	return totp.GenerateCode(e.Secret, t)
}
