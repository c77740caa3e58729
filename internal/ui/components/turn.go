// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
	"github.com/jeranaias/mindstack-tui/internal/util"
)

// ThinkingText is shown while the assistant has not produced anything yet.
const ThinkingText = "Thinking…"

// =============================================================================
// TURN
// =============================================================================

// Turn renders one chat turn.
type Turn struct {
	Turn    model.Turn
	Width   int
	Spinner string
}

// Render renders the turn with its label and, for answers, its sources.
func (t Turn) Render(theme *styles.Theme, md *Markdown) string {
	turn := t.Turn
	inner := max(t.Width-2, 16)
	label := theme.TurnLabel.Render(turn.Role.DisplayName())

	var body string
	style := theme.AssistantTurn
	switch {
	case turn.Role == model.RoleUser:
		style = theme.UserTurn
		body = lipgloss.NewStyle().Width(inner).Render(turn.Content)
	case turn.IsThinking():
		body = theme.Thinking.Render(strings.TrimSpace(t.Spinner + " " + ThinkingText))
	case turn.Failed():
		style = theme.ErrorTurn
		body = lipgloss.NewStyle().Width(inner).Render(turn.Content)
	case turn.Pending:
		// Plain text while streaming; markdown is rendered once the turn settles.
		body = lipgloss.NewStyle().Width(inner).Render(turn.Content + "▍")
	default:
		body = md.Render(turn.Content, inner)
	}

	parts := []string{label, body}
	if sources := RenderSources(theme, turn.Sources, inner); sources != "" {
		parts = append(parts, sources)
	}
	return style.Render(strings.Join(parts, "\n"))
}

// RenderSources lists source URLs under an answer.
func RenderSources(theme *styles.Theme, sources []string, width int) string {
	if len(sources) == 0 {
		return ""
	}
	lines := []string{theme.Sources.Render("Sources")}
	for i, src := range sources {
		icon := "🔗"
		if api.IsImageSource(src) {
			icon = "🖼"
		}
		host := api.SourceHost(src)
		line := theme.Sources.Render(strconv.Itoa(i+1)+". "+icon+" ") +
			theme.SourceLink.Render(util.TruncateWidth(host, width-8))
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RenderTranscript renders a whole conversation, separated by blank lines.
func RenderTranscript(theme *styles.Theme, md *Markdown, conv model.Conversation, width int, spinner string) string {
	if conv.IsEmpty() {
		return theme.Muted.Render("Ask anything about what you saved in this project.")
	}
	out := make([]string, 0, len(conv.Turns))
	for _, turn := range conv.Turns {
		out = append(out, Turn{Turn: turn, Width: width, Spinner: spinner}.Render(theme, md))
	}
	return strings.Join(out, "\n\n")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
