// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockserver is an in-memory stand-in for the MindStack backend and
// its auth provider, used by `mindstack dev-server` and by end-to-end tests.
//
// Endpoints:
//   - POST   /auth/v1/token?grant_type=password|refresh_token
//   - POST   /auth/v1/signup
//   - POST   /auth/v1/logout
//   - GET    /auth/v1/user
//   - GET    /api/projects
//   - POST   /api/projects
//   - GET    /api/projects/{id}/captures
//   - DELETE /api/captures/{id}
//   - POST   /api/chat            (text/event-stream)
//   - GET    /health
//
// Data lives in memory and is seeded with a demo account
// (DemoEmail / DemoPassword) owning one project.
package mockserver
