// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the MindStack TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The theme can also be pinned with the ui.theme config key.

# Color System (colors.go)

  - Purple - assistant turns and selections
  - Cyan - brand color, user turns and links
  - Emerald - success states
  - Amber - warnings and stale cache notices
  - Rose - errors

Capture types have their own accent colors, looked up with CaptureColor.

# Theme System (theme.go)

	theme := styles.NewTheme("auto")
	theme.SetSize(width, height)
	card := theme.Card.Render(body)
*/
package styles
