// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutMode(t *testing.T) {
	theme := NewTheme("dark")
	assert.True(t, theme.IsDark)

	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{109, LayoutMedium},
		{110, LayoutWide},
	}
	for _, tt := range tests {
		theme.SetSize(tt.width, 30)
		assert.Equal(t, tt.want, theme.GetLayoutMode(), "width %d", tt.width)
	}
}

func TestCaptureColor(t *testing.T) {
	c := CaptureColor("#3B82F6")
	assert.Equal(t, "#3B82F6", c.Light)
	assert.Equal(t, "#3B82F6", c.Dark)

	fallback := CaptureColor("")
	assert.NotEmpty(t, fallback.Light)
}
