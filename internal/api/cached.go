// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/storage"
)

// Meta describes where a list result came from.
type Meta struct {
	// Stale is true when the result was served from the local cache.
	Stale    bool
	CachedAt time.Time
}

// CachedClient wraps a Client with a read-through local cache. Reads fall
// back to the cache when the backend is unreachable; writes go through to
// both.
type CachedClient struct {
	client  *Client
	cache   *storage.Cache
	offline bool
	logger  *slog.Logger
}

// NewCached wraps client with cache. A nil cache disables caching. When
// offline is set, reads come only from the cache and writes fail.
func NewCached(client *Client, cache *storage.Cache, offline bool, logger *slog.Logger) *CachedClient {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CachedClient{client: client, cache: cache, offline: offline, logger: logger}
}

// Client returns the underlying client.
func (c *CachedClient) Client() *Client {
	return c.client
}

// Offline reports whether the client is in offline mode.
func (c *CachedClient) Offline() bool {
	return c.offline
}

// =============================================================================
// READS
// =============================================================================

// ListProjects lists projects, falling back to the cache on network failure.
func (c *CachedClient) ListProjects(ctx context.Context) ([]Project, Meta, error) {
	if !c.offline {
		projects, err := c.client.ListProjects(ctx)
		if err == nil {
			c.storeProjects(ctx, projects)
			return projects, Meta{}, nil
		}
		if !c.canFallBack(err) {
			return nil, Meta{}, err
		}
		c.logger.Warn("listing projects failed, using cache", "error", err)
		cached, meta, cerr := c.cachedProjects(ctx)
		if cerr != nil {
			return nil, Meta{}, err
		}
		return cached, meta, nil
	}
	return c.cachedProjects(ctx)
}

// ListCaptures lists a project's captures, falling back to the cache on
// network failure.
func (c *CachedClient) ListCaptures(ctx context.Context, projectID string) ([]Capture, Meta, error) {
	if !c.offline {
		captures, err := c.client.ListCaptures(ctx, projectID)
		if err == nil {
			c.storeCaptures(ctx, projectID, captures)
			return captures, Meta{}, nil
		}
		if !c.canFallBack(err) {
			return nil, Meta{}, err
		}
		c.logger.Warn("listing captures failed, using cache", "project", projectID, "error", err)
		cached, meta, cerr := c.cachedCaptures(ctx, projectID)
		if cerr != nil {
			return nil, Meta{}, err
		}
		return cached, meta, nil
	}
	return c.cachedCaptures(ctx, projectID)
}

// =============================================================================
// WRITES
// =============================================================================

// CreateProject creates a project and adds it to the cache.
func (c *CachedClient) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	if c.offline {
		return nil, ErrOffline
	}
	p, err := c.client.CreateProject(ctx, name, description)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && p.ID != "" {
		if data, err := json.Marshal(p); err == nil {
			if err := c.cache.AddProject(ctx, storage.Row{ID: p.ID, Data: data}); err != nil {
				c.logger.Warn("failed to cache project", "error", err)
			}
		}
	}
	return p, nil
}

// DeleteCapture deletes a capture and removes it from the cache.
func (c *CachedClient) DeleteCapture(ctx context.Context, captureID string) error {
	if c.offline {
		return ErrOffline
	}
	if err := c.client.DeleteCapture(ctx, captureID); err != nil {
		return err
	}
	if c.cache != nil {
		if err := c.cache.DeleteCapture(ctx, captureID); err != nil {
			c.logger.Warn("failed to uncache capture", "error", err)
		}
	}
	return nil
}

// Clear drops every cached row.
func (c *CachedClient) Clear(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// Prune drops cached rows older than ttl.
func (c *CachedClient) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	if c.cache == nil || ttl <= 0 {
		return 0, nil
	}
	return c.cache.Prune(ctx, ttl)
}

// =============================================================================
// HELPERS
// =============================================================================

// canFallBack reports whether err is a transport or server failure. Auth
// failures never fall back.
func (c *CachedClient) canFallBack(err error) bool {
	if c.cache == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, auth.ErrNoSession) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *CachedClient) storeProjects(ctx context.Context, projects []Project) {
	if c.cache == nil {
		return
	}
	rows := make([]storage.Row, 0, len(projects))
	for _, p := range projects {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		rows = append(rows, storage.Row{ID: p.ID, Data: data})
	}
	if err := c.cache.SaveProjects(ctx, rows); err != nil {
		c.logger.Warn("failed to cache projects", "error", err)
	}
}

func (c *CachedClient) storeCaptures(ctx context.Context, projectID string, captures []Capture) {
	if c.cache == nil {
		return
	}
	rows := make([]storage.Row, 0, len(captures))
	for _, cp := range captures {
		data, err := json.Marshal(cp)
		if err != nil {
			continue
		}
		rows = append(rows, storage.Row{ID: cp.ID, Data: data})
	}
	if err := c.cache.SaveCaptures(ctx, projectID, rows); err != nil {
		c.logger.Warn("failed to cache captures", "error", err)
	}
}

func (c *CachedClient) cachedProjects(ctx context.Context) ([]Project, Meta, error) {
	if c.cache == nil {
		return nil, Meta{}, storage.ErrNotCached
	}
	rows, at, err := c.cache.LoadProjects(ctx)
	if err != nil {
		return nil, Meta{}, err
	}
	projects := make([]Project, 0, len(rows))
	for _, r := range rows {
		var p Project
		if err := json.Unmarshal(r.Data, &p); err != nil {
			continue
		}
		projects = append(projects, p)
	}
	return projects, Meta{Stale: true, CachedAt: at}, nil
}

func (c *CachedClient) cachedCaptures(ctx context.Context, projectID string) ([]Capture, Meta, error) {
	if c.cache == nil {
		return nil, Meta{}, storage.ErrNotCached
	}
	rows, at, err := c.cache.LoadCaptures(ctx, projectID)
	if err != nil {
		return nil, Meta{}, err
	}
	captures := make([]Capture, 0, len(rows))
	for _, r := range rows {
		var cp Capture
		if err := json.Unmarshal(r.Data, &cp); err != nil {
			continue
		}
		captures = append(captures, cp)
	}
	return captures, Meta{Stale: true, CachedAt: at}, nil
}
