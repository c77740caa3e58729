// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the client for the MindStack backend.
//
// It covers the project and capture CRUD routes and opens the streamed chat
// route; decoding the chat stream is left to package sse. Every request
// carries a bearer token from an auth.TokenSource and passes through a rate
// limiter.
//
// # Key Types
//
//   - Client: direct HTTP client
//   - CachedClient: Client plus the offline cache, used by the TUI and CLI
//   - Project, Capture, Attachment: response types
//
// # Errors
//
// A 401 from any CRUD route signs the user out and returns ErrUnauthorized.
// OpenChat returns ErrUnauthorized without signing out; the chat session
// decides what to do with the pending turn first. Other non-2xx responses
// are returned as *APIError.
package api
