// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the mindstack command line.
//
// With no arguments mindstack starts the full-screen TUI. Every other
// command is a scriptable, non-interactive view of the same backend:
//
//	mindstack login                       Sign in (prompts for credentials)
//	mindstack projects                    List projects
//	mindstack captures "postgres"         List a project's captures
//	mindstack ask postgres "what broke?"  Ask one question
//	mindstack chat postgres               Line-based chat REPL
//	mindstack dev-server                  Local fake backend
//
// Handlers take an *env and return errors; Run prints them and maps them
// to exit codes with GetExitCode.
package cli
