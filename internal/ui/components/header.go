// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the title bar.
type Header struct {
	Title   string
	Account string
	Offline bool
	Width   int
}

// Render renders the header across the full width.
func (h Header) Render(theme *styles.Theme) string {
	left := theme.HeaderBrand.Render("◆ MindStack")
	if h.Title != "" {
		left += theme.Muted.Render("  /  ") + theme.HeaderTitle.Render(h.Title)
	}

	var right []string
	if h.Offline {
		right = append(right, theme.StaleBadge.Render("OFFLINE"))
	}
	if h.Account != "" {
		right = append(right, theme.Muted.Render(h.Account))
	}
	rightText := strings.Join(right, " ")

	inner := h.Width - 2
	gap := inner - lipgloss.Width(left) - lipgloss.Width(rightText)
	if gap < 1 {
		rightText = ""
		gap = max(0, inner-lipgloss.Width(left))
	}
	return theme.Header.Width(h.Width).MaxWidth(h.Width).Render(left + strings.Repeat(" ", gap) + rightText)
}
