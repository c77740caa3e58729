// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders markdown for the terminal, keeping one glamour renderer
// per wrap width.
type Markdown struct {
	style string

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown creates a renderer. style is "dark", "light" or "auto".
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: style, renderers: make(map[int]*glamour.TermRenderer)}
}

// Render renders md wrapped at width. The input is returned as is when
// rendering fails.
func (m *Markdown) Render(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	r := m.renderer(width)
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func (m *Markdown) renderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.renderers[width]; ok {
		return r
	}

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width), glamour.WithEmoji()}
	switch m.style {
	case "dark", "light":
		opts = append(opts, glamour.WithStandardStyle(m.style))
	default:
		opts = append(opts, glamour.WithAutoStyle())
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil
	}
	m.renderers[width] = r
	return r
}
