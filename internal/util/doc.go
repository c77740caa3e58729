// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the mindstack packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateWidth: display-width aware truncation (CJK, emoji) with ellipsis
//   - FirstLine: first non-empty line of a block of text
//   - Fingerprint: short SHA-256 fingerprint for logging secrets
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateWidth(capture.PageTitle, 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
