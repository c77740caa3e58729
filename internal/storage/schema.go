// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// SchemaVersion is stored in the metadata table.
const SchemaVersion = "1"

// Schema creates the cache tables.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
    id        TEXT PRIMARY KEY,
    position  INTEGER NOT NULL,
    data      BLOB NOT NULL,
    cached_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS captures (
    id         TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    position   INTEGER NOT NULL,
    data       BLOB NOT NULL,
    cached_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captures_project ON captures(project_id, position);
`

// InitMetadata seeds the metadata table.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '` + SchemaVersion + `');
`
