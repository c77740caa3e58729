// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full-screen interface.
package cli

import (
	"context"

	"github.com/jeranaias/mindstack-tui/internal/ui"
)

// HandleTUI starts the full-screen interface.
func HandleTUI(e *env) error {
	if err := RequiresTTY("start the interface"); err != nil {
		return err
	}

	if ttl := e.cfg.CacheTTL(); ttl > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.APITimeout())
		n, err := e.api.Prune(ctx, ttl)
		cancel()
		if err != nil {
			e.logger.Warn("cache prune failed", "error", err)
		} else if n > 0 {
			e.logger.Debug("cache pruned", "rows", n)
		}
	}

	// Another process signing in or out updates this one.
	if err := e.auth.Watch(); err != nil {
		e.logger.Warn("session watch disabled", "error", err)
	}

	return ui.Run(ui.Deps{
		Auth:   e.auth,
		API:    e.api,
		Config: e.cfg,
		Logger: e.logger.With("component", "ui"),
	})
}
