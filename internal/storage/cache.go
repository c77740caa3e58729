// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotCached is returned when nothing has been cached for a request.
	ErrNotCached = errors.New("not in offline cache")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache is closed")
)

// =============================================================================
// TYPES
// =============================================================================

// Row is one cached object.
type Row struct {
	ID   string
	Data []byte
}

// Cache is the SQLite-backed offline cache. It is safe for concurrent use.
type Cache struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the cache database at path. Use ":memory:" for a
// throwaway cache.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	if path != ":memory:" {
		_ = os.Chmod(path, 0600)
	}
	return &Cache{db: db, now: time.Now}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Cache) handle() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrClosed
	}
	return c.db, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

// SaveProjects replaces the cached project list.
func (c *Cache) SaveProjects(ctx context.Context, rows []Row) error {
	return c.replace(ctx, "DELETE FROM projects", nil, func(tx *sql.Tx, ts int64) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO projects (id, position, data, cached_at) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ID, i, r.Data, ts); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddProject puts a newly created project at the top of the cached list.
func (c *Cache) AddProject(ctx context.Context, row Row) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO projects (id, position, data, cached_at)
		 VALUES (?, (SELECT COALESCE(MIN(position), 0) - 1 FROM projects), ?, ?)`,
		row.ID, row.Data, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to cache project: %w", err)
	}
	return nil
}

// LoadProjects returns the cached project list and when it was cached.
func (c *Cache) LoadProjects(ctx context.Context) ([]Row, time.Time, error) {
	return c.load(ctx, "SELECT id, data, cached_at FROM projects ORDER BY position")
}

// =============================================================================
// CAPTURES
// =============================================================================

// SaveCaptures replaces the cached captures of one project.
func (c *Cache) SaveCaptures(ctx context.Context, projectID string, rows []Row) error {
	return c.replace(ctx, "DELETE FROM captures WHERE project_id = ?", []any{projectID}, func(tx *sql.Tx, ts int64) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO captures (id, project_id, position, data, cached_at) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ID, projectID, i, r.Data, ts); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadCaptures returns the cached captures of a project.
func (c *Cache) LoadCaptures(ctx context.Context, projectID string) ([]Row, time.Time, error) {
	return c.load(ctx, "SELECT id, data, cached_at FROM captures WHERE project_id = ? ORDER BY position", projectID)
}

// DeleteCapture removes one capture from the cache.
func (c *Cache) DeleteCapture(ctx context.Context, captureID string) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM captures WHERE id = ?", captureID); err != nil {
		return fmt.Errorf("failed to delete cached capture: %w", err)
	}
	return nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Prune deletes rows cached more than olderThan ago and returns how many
// were removed.
func (c *Cache) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	db, err := c.handle()
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-olderThan).UnixMilli()

	var total int64
	for _, table := range []string{"projects", "captures"} {
		res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE cached_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Clear removes everything. Called on sign-out so the next user does not
// see the previous user's data.
func (c *Cache) Clear(ctx context.Context) error {
	db, err := c.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM projects; DELETE FROM captures;"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Cache) replace(ctx context.Context, deleteQuery string, args []any, insert func(tx *sql.Tx, ts int64) error) error {
	db, err := c.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("failed to clear cached rows: %w", err)
	}
	if err := insert(tx, c.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to cache rows: %w", err)
	}
	return tx.Commit()
}

func (c *Cache) load(ctx context.Context, query string, args ...any) ([]Row, time.Time, error) {
	db, err := c.handle()
	if err != nil {
		return nil, time.Time{}, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	var (
		out    []Row
		oldest int64
	)
	for rows.Next() {
		var r Row
		var ts int64
		if err := rows.Scan(&r.ID, &r.Data, &ts); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cached row: %w", err)
		}
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if len(out) == 0 {
		return nil, time.Time{}, ErrNotCached
	}
	return out, time.UnixMilli(oldest), nil
}
