// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// FRAME
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	ShortcutKey lipgloss.Style
	ShortcutDsc lipgloss.Style

	// ==========================================================================
	// FORMS
	// ==========================================================================

	FormBox      lipgloss.Style
	FormTitle    lipgloss.Style
	FormLabel    lipgloss.Style
	FormFocused  lipgloss.Style
	FormHint     lipgloss.Style
	FormError    lipgloss.Style
	FormNotice   lipgloss.Style
	ButtonActive lipgloss.Style
	Button       lipgloss.Style

	// ==========================================================================
	// LISTS AND CARDS
	// ==========================================================================

	ListItem         lipgloss.Style
	ListItemSelected lipgloss.Style
	ListMeta         lipgloss.Style
	Card             lipgloss.Style
	CardSelected     lipgloss.Style
	CardTitle        lipgloss.Style
	CardMeta         lipgloss.Style
	SectionLabel     lipgloss.Style
	StaleBadge       lipgloss.Style

	// ==========================================================================
	// CHAT
	// ==========================================================================

	UserTurn      lipgloss.Style
	AssistantTurn lipgloss.Style
	ErrorTurn     lipgloss.Style
	TurnLabel     lipgloss.Style
	Thinking      lipgloss.Style
	Sources       lipgloss.Style
	SourceLink    lipgloss.Style
	Input         lipgloss.Style
	InputFocused  lipgloss.Style

	// ==========================================================================
	// TEXT
	// ==========================================================================

	Muted   lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
}

// NewTheme creates a theme. mode is "auto", "dark" or "light".
func NewTheme(mode string) *Theme {
	isDark := termenv.HasDarkBackground()
	switch strings.ToLower(mode) {
	case "dark":
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	case "light":
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	}

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Frame
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextPrimary).
		Padding(0, 1)

	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDsc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Forms
	t.FormBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 3)

	t.FormTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		MarginBottom(1)

	t.FormLabel = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.FormFocused = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.FormHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.FormError = lipgloss.NewStyle().
		Foreground(Rose)

	t.FormNotice = lipgloss.NewStyle().
		Foreground(Emerald)

	t.Button = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 2)

	t.ButtonActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Cyan).
		Bold(true).
		Padding(0, 2)

	// Lists and cards
	t.ListItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.ListItemSelected = lipgloss.NewStyle().
		Foreground(Purple).
		Background(SurfaceBright).
		Bold(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Purple).
		PaddingLeft(1)

	t.ListMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Card = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.CardSelected = t.Card.
		BorderForeground(Purple)

	t.CardTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	t.CardMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.SectionLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true).
		Underline(true)

	t.StaleBadge = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Amber).
		Padding(0, 1)

	// Chat
	t.UserTurn = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserTurnBorder).
		PaddingLeft(1)

	t.AssistantTurn = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantTurnBorder).
		PaddingLeft(1)

	t.ErrorTurn = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(ErrorTurnBorder).
		Foreground(Rose).
		PaddingLeft(1)

	t.TurnLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary)

	t.Thinking = lipgloss.NewStyle().
		Foreground(Purple).
		Italic(true)

	t.Sources = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.SourceLink = lipgloss.NewStyle().
		Foreground(LinkColor).
		Underline(true)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)

	t.InputFocused = t.Input.
		BorderForeground(Cyan)

	// Text
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
	t.Error = lipgloss.NewStyle().Foreground(Rose)
	t.Warning = lipgloss.NewStyle().Foreground(Amber)
	t.Success = lipgloss.NewStyle().Foreground(Emerald)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 110 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-110 columns
	LayoutWide                     // > 110 columns, timeline and chat side by side
)
