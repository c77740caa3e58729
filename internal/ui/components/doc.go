// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components renders the pieces of the MindStack TUI as strings.

Components are pure functions of their inputs and a *styles.Theme; the
screens in package ui own all state.

# Display Components

  - Header (header.go) - brand, screen title, account and offline badge
  - StatusBar (statusbar.go) - key hints and a right-aligned status
  - CaptureCard (card.go) - one timeline entry, collapsed or expanded
  - Turn (turn.go) - one chat turn with its sources
  - CodeBlock (codeblock.go) - chroma-highlighted diffs and logs
  - Markdown (markdown.go) - glamour rendering cached per width
*/
package components
