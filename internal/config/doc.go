// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for mindstack.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - APIConfig: Backend base URL, timeout, and rate limit
//   - AuthConfig: Auth provider URL, anon key, and session location
//   - ChatConfig: Streaming chat idle timeout
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MINDSTACK_*)
//   - ~/.mindstack/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	idle := cfg.StreamIdleTimeout()
package config
