// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - login, signup, logout, whoami and mfa.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/mindstack-tui/internal/auth"
)

// HandleLogin signs in, or creates an account when signUp is set.
//
//	mindstack login [EMAIL]
//	mindstack signup [EMAIL]
func HandleLogin(e *env, args Args, signUp bool) error {
	if !e.auth.IsConfigured() {
		return auth.ErrNotConfigured
	}

	p := e.prompter()
	email := strings.TrimSpace(args.Query)
	if email == "" {
		var err error
		if email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	if email == "" {
		return NewValidationError("email", "", "is required")
	}
	password, err := p.Password("Password: ")
	if err != nil {
		return err
	}
	if password == "" {
		return NewValidationError("password", "", "is required")
	}

	ctx, cancel := e.context()
	defer cancel()

	if signUp {
		pending, err := e.auth.SignUp(ctx, email, password)
		if err != nil {
			return err
		}
		if pending {
			fmt.Fprintln(e.out, RenderConditional(WarningStyle, auth.SignUpConfirmationMessage))
			return nil
		}
		fmt.Fprintln(e.out, RenderConditional(SuccessStyle, "Account created. Signed in as "+email+"."))
		return nil
	}

	info, err := e.auth.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	e.logger.Info("signed in", "user", info.UserID)
	fmt.Fprintln(e.out, RenderConditional(SuccessStyle, "Signed in as "+info.Email+"."))
	return nil
}

// HandleLogout signs out and clears the offline cache.
func HandleLogout(e *env) error {
	ctx, cancel := e.context()
	defer cancel()

	signedIn := e.auth.Session().SignedIn
	if err := e.auth.SignOut(ctx); err != nil {
		return err
	}
	if err := e.api.Clear(ctx); err != nil {
		e.logger.Warn("clearing cache failed", "error", err)
	}
	if signedIn {
		fmt.Fprintln(e.out, "Signed out.")
	} else {
		fmt.Fprintln(e.out, "Not signed in.")
	}
	return nil
}

type whoami struct {
	SignedIn  bool      `json:"signed_in"`
	Email     string    `json:"email,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	API       string    `json:"api"`
	Offline   bool      `json:"offline"`
}

// HandleWhoami shows the stored session.
func HandleWhoami(e *env, args Args) error {
	info := e.auth.Session()
	out := whoami{
		SignedIn:  info.SignedIn,
		Email:     info.Email,
		UserID:    info.UserID,
		ExpiresAt: info.ExpiresAt,
		API:       e.api.Client().BaseURL(),
		Offline:   e.api.Offline(),
	}
	if e.json || args.JSON {
		return writeJSON(e.out, out)
	}
	if !info.SignedIn {
		return auth.ErrNoSession
	}

	fmt.Fprintln(e.out, RenderLabel("Email", info.Email))
	fmt.Fprintln(e.out, RenderLabel("User ID", info.UserID))
	expiry := info.ExpiresAt.Local().Format(time.DateTime)
	if !info.Valid {
		expiry += " (expired, refreshes on next use)"
	}
	fmt.Fprintln(e.out, RenderLabel("Token expires", expiry))
	fmt.Fprintln(e.out, RenderLabel("API", out.API))
	if out.Offline {
		fmt.Fprintln(e.out, RenderLabel("Mode", "offline"))
	}
	return nil
}

// =============================================================================
// MFA
// =============================================================================

// HandleMFA enrolls and verifies TOTP factors.
//
//	mindstack mfa enroll [NAME]
//	mindstack mfa verify [FACTOR] CODE
//	mindstack mfa list
func HandleMFA(e *env, args Args) error {
	p := args.Flags
	ctx, cancel := e.context()
	defer cancel()

	switch args.Subcommand {
	case "enroll":
		name := JoinPositionalArgs(p, 1)
		if name == "" {
			name = "mindstack-" + time.Now().Format("20060102")
		}
		enrollment, err := e.auth.EnrollTOTP(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, TitleStyle.Render("Authenticator enrollment"))
		fmt.Fprintln(e.out, RenderLabel("Factor", enrollment.FactorID))
		fmt.Fprintln(e.out, RenderLabel("Secret", enrollment.Secret))
		fmt.Fprintln(e.out, RenderLabel("URI", enrollment.URI))
		fmt.Fprintln(e.out)
		fmt.Fprintf(e.out, "Add it to your authenticator app, then run:\n  mindstack mfa verify %s CODE\n", enrollment.FactorID)
		return nil

	case "verify":
		factorID, code := p.Positional(1), p.Positional(2)
		if code == "" {
			code, factorID = factorID, ""
		}
		if code == "" {
			return NewUsageError("a code is required", "mindstack mfa verify [FACTOR] CODE")
		}
		if factorID == "" {
			id, err := pendingFactor(ctx, e)
			if err != nil {
				return err
			}
			factorID = id
		}
		if err := e.auth.ChallengeAndVerify(ctx, factorID, code); err != nil {
			return err
		}
		fmt.Fprintln(e.out, RenderConditional(SuccessStyle, "Authenticator verified."))
		return nil

	case "", "list":
		factors, err := e.auth.Factors(ctx)
		if err != nil {
			return err
		}
		if len(factors) == 0 {
			fmt.Fprintln(e.out, "No MFA factors. Run `mindstack mfa enroll` to add one.")
			return nil
		}
		for _, f := range factors {
			fmt.Fprintf(e.out, "%s  %-6s  %-10s  %s\n", f.ID, f.FactorType, f.Status, f.FriendlyName)
		}
		return nil
	}
	return NewUsageError("unknown mfa command "+args.Subcommand, "mindstack mfa enroll|verify|list")
}

// pendingFactor returns the only unverified TOTP factor.
func pendingFactor(ctx context.Context, e *env) (string, error) {
	factors, err := e.auth.Factors(ctx)
	if err != nil {
		return "", err
	}
	var ids []string
	for _, f := range factors {
		if f.FactorType == "totp" && f.Status != "verified" {
			ids = append(ids, f.ID)
		}
	}
	switch len(ids) {
	case 0:
		return "", errors.New("no unverified factor; run `mindstack mfa enroll` first")
	case 1:
		return ids[0], nil
	}
	return "", NewUsageError("several unverified factors", "mindstack mfa verify FACTOR CODE")
}
