// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ids(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestCache_Projects(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	_, _, err := c.LoadProjects(ctx)
	require.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, c.SaveProjects(ctx, []Row{
		{ID: "p2", Data: []byte(`{"id":"p2"}`)},
		{ID: "p1", Data: []byte(`{"id":"p1"}`)},
	}))
	rows, cachedAt, err := c.LoadProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, ids(rows))
	assert.JSONEq(t, `{"id":"p2"}`, string(rows[0].Data))
	assert.WithinDuration(t, time.Now(), cachedAt, time.Minute)

	require.NoError(t, c.AddProject(ctx, Row{ID: "p3", Data: []byte(`{"id":"p3"}`)}))
	rows, _, err = c.LoadProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2", "p1"}, ids(rows))

	require.NoError(t, c.SaveProjects(ctx, []Row{{ID: "p9", Data: []byte(`{}`)}}))
	rows, _, err = c.LoadProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p9"}, ids(rows))
}

func TestCache_CapturesPerProject(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	require.NoError(t, c.SaveCaptures(ctx, "a", []Row{{ID: "c1", Data: []byte(`1`)}, {ID: "c2", Data: []byte(`2`)}}))
	require.NoError(t, c.SaveCaptures(ctx, "b", []Row{{ID: "c3", Data: []byte(`3`)}}))

	rows, _, err := c.LoadCaptures(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids(rows))

	require.NoError(t, c.DeleteCapture(ctx, "c1"))
	rows, _, err = c.LoadCaptures(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(rows))

	rows, _, err = c.LoadCaptures(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, ids(rows))

	_, _, err = c.LoadCaptures(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestCache_Prune(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	base := time.Now()

	c.now = func() time.Time { return base.Add(-48 * time.Hour) }
	require.NoError(t, c.SaveCaptures(ctx, "old", []Row{{ID: "c1", Data: []byte(`1`)}}))

	c.now = func() time.Time { return base }
	require.NoError(t, c.SaveProjects(ctx, []Row{{ID: "p1", Data: []byte(`{}`)}}))

	n, err := c.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, err = c.LoadCaptures(ctx, "old")
	assert.ErrorIs(t, err, ErrNotCached)
	_, _, err = c.LoadProjects(ctx)
	assert.NoError(t, err)
}

func TestCache_ClearAndClose(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()

	require.NoError(t, c.SaveProjects(ctx, []Row{{ID: "p1", Data: []byte(`{}`)}}))
	require.NoError(t, c.SaveCaptures(ctx, "p1", []Row{{ID: "c1", Data: []byte(`{}`)}}))
	require.NoError(t, c.Clear(ctx))

	_, _, err := c.LoadProjects(ctx)
	assert.ErrorIs(t, err, ErrNotCached)
	_, _, err = c.LoadCaptures(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, _, err = c.LoadProjects(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCache_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	ctx := context.Background()

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.SaveProjects(ctx, []Row{{ID: "p1", Data: []byte(`{}`)}}))
	require.NoError(t, c.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	rows, _, err := c.LoadProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(rows))
}
