// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth is the client side of the hosted auth provider (Supabase
// GoTrue).
//
// A Client is built once per process and passed to whatever needs a bearer
// token; nothing in this package is global. It signs users in and out,
// refreshes the access token before it expires, and tells subscribers when
// the session ends, whether that is an explicit sign-out, a failed refresh,
// or another process deleting the session file.
//
// # Session Storage
//
// Sessions are stored sealed with AES-256-GCM. The key is derived with
// PBKDF2-SHA-256 from a random per-install secret kept next to the session
// in a 0600 key file.
//
// # Usage
//
//	client, err := auth.New(auth.Options{URL: cfg.Auth.URL, AnonKey: cfg.Auth.AnonKey, Store: store})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	token, err := client.Token(ctx)
//	if errors.Is(err, auth.ErrNoSession) {
//	    // send the user to the login screen
//	}
package auth
