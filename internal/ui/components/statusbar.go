// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// Shortcut is a key hint.
type Shortcut struct {
	Key  string
	Desc string
}

// StatusBar is the bottom line with key hints and a status message.
type StatusBar struct {
	Shortcuts []Shortcut
	Status    string
	Width     int
}

// Render renders the status bar. Hints that do not fit are dropped from the
// end.
func (s StatusBar) Render(theme *styles.Theme) string {
	inner := s.Width - 2
	status := s.Status
	if lipgloss.Width(status) > inner {
		status = ""
	}

	var hints []string
	used := lipgloss.Width(status)
	for _, sc := range s.Shortcuts {
		hint := theme.ShortcutKey.Render(sc.Key) + " " + theme.ShortcutDsc.Render(sc.Desc)
		w := lipgloss.Width(hint) + 2
		if used+w > inner {
			break
		}
		hints = append(hints, hint)
		used += w
	}

	left := strings.Join(hints, "  ")
	gap := inner - lipgloss.Width(left) - lipgloss.Width(status)
	if gap < 0 {
		gap = 0
	}
	return theme.StatusBar.Width(s.Width).Render(left + strings.Repeat(" ", gap) + status)
}
