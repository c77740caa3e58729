// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local offline cache for mindstack.
//
// The cache is a SQLite database (~/.mindstack/cache.db) holding the last
// project list and the capture timeline of each visited project, so the
// dashboard can still be browsed when the backend is unreachable. Rows are
// stored as the JSON the API returned; this package does not interpret them.
//
// # Key Types
//
//   - Cache: the database handle
//   - Row: one cached object with its ID and JSON payload
//
// # Usage
//
//	cache, err := storage.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	rows, cachedAt, err := cache.LoadProjects(ctx)
package storage
