// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
	"github.com/jeranaias/mindstack-tui/internal/util"
)

// =============================================================================
// CAPTURE CARD
// =============================================================================

// CaptureCard renders one timeline entry.
type CaptureCard struct {
	Capture  api.Capture
	Width    int
	Selected bool
	Expanded bool
}

// Render renders the card. Expanded cards show the AI summary, IDE details
// and attachments.
func (c CaptureCard) Render(theme *styles.Theme, md *Markdown) string {
	cp := c.Capture
	inner := max(c.Width-4, 16)

	badge := lipgloss.NewStyle().
		Foreground(styles.CaptureColor(cp.CaptureType.Color())).
		Bold(true).
		Render(cp.CaptureType.Icon() + " " + cp.CaptureType.Label())
	stamp := theme.CardMeta.Render(cp.Timestamp())
	gap := max(1, inner-lipgloss.Width(badge)-lipgloss.Width(stamp))
	lines := []string{badge + strings.Repeat(" ", gap) + stamp}

	if title := cp.Title(); title != "" {
		lines = append(lines, theme.CardTitle.Render(util.TruncateWidth(title, inner)))
	}
	if cp.IDEFilePath != "" {
		lines = append(lines, theme.CardMeta.Render(util.TruncateWidth(cp.IDEFilePath, inner)))
	}

	if !c.Expanded {
		if preview := cp.Preview(); preview != "" {
			lines = append(lines, lipgloss.NewStyle().Width(inner).Render(preview))
		}
		if n := len(cp.Attachments); n > 0 {
			lines = append(lines, theme.CardMeta.Render(attachmentCount(n)))
		}
	} else {
		lines = append(lines, c.details(theme, md, inner)...)
	}

	style := theme.Card
	if c.Selected {
		style = theme.CardSelected
	}
	return style.Width(c.Width - 2).Render(strings.Join(lines, "\n"))
}

func (c CaptureCard) details(theme *styles.Theme, md *Markdown, width int) []string {
	cp := c.Capture
	var out []string

	if cp.TextContent != "" {
		out = append(out, lipgloss.NewStyle().Width(width).Render(strings.TrimSpace(cp.TextContent)))
	}
	if cp.SourceURL != "" {
		out = append(out, theme.SourceLink.Render(util.TruncateWidth(cp.SourceURL, width)))
	}
	if cp.AIMarkdownSummary != "" {
		out = append(out, "", theme.SectionLabel.Render("AI summary"), md.Render(cp.AIMarkdownSummary, width))
	}
	if cp.IDECodeDiff != "" {
		out = append(out, "", RenderDiff(cp.IDECodeDiff, cp.IDEFilePath, width))
	}
	if cp.IDEErrorLog != "" {
		out = append(out, "", RenderLog(cp.IDEErrorLog, width))
	}
	if len(cp.Attachments) > 0 {
		out = append(out, "", theme.SectionLabel.Render("Attachments"))
		for _, a := range cp.Attachments {
			icon := "📎"
			if a.IsImage() {
				icon = "🖼"
			}
			name := a.FileName
			if name == "" {
				name = a.S3URL
			}
			out = append(out, icon+" "+util.TruncateWidth(name, width-3))
		}
	}
	return out
}

func attachmentCount(n int) string {
	if n == 1 {
		return "📎 1 attachment"
	}
	return "📎 " + itoa(n) + " attachments"
}
