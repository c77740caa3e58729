// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

func testTheme() *styles.Theme {
	return styles.NewTheme("dark")
}

func TestCaptureCard_Collapsed(t *testing.T) {
	card := CaptureCard{
		Capture: api.Capture{
			CaptureType: api.CaptureWebText,
			PageTitle:   "pgx docs",
			TextContent: strings.Repeat("word ", 100),
			CreatedAt:   time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
			Attachments: []api.Attachment{{ID: "a", FileType: "IMAGE"}},
		},
		Width: 60,
	}

	out := card.Render(testTheme(), NewMarkdown("dark"))
	assert.Contains(t, out, "Web Page")
	assert.Contains(t, out, "pgx docs")
	assert.Contains(t, out, "1 attachment")
	assert.Contains(t, out, "…")
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 60)
	}
}

func TestCaptureCard_Expanded(t *testing.T) {
	card := CaptureCard{
		Capture: api.Capture{
			CaptureType: api.CaptureIDEBugFix,
			IDEFilePath: "main.go",
			IDECodeDiff: "-old\n+new",
			IDEErrorLog: "panic: boom",
			Attachments: []api.Attachment{{ID: "a", FileName: "trace.txt", FileType: "DOCUMENT"}},
		},
		Width:    70,
		Expanded: true,
	}

	out := card.Render(testTheme(), NewMarkdown("dark"))
	assert.Contains(t, out, "Bug Fix")
	assert.Contains(t, out, "Diff · main.go")
	assert.Contains(t, out, "Error log")
	assert.Contains(t, out, "trace.txt")
}

func TestTurn_Thinking(t *testing.T) {
	conv, _, err := model.Begin(model.NewConversation("p"), "hi")
	assert.NoError(t, err)

	out := RenderTranscript(testTheme(), NewMarkdown("dark"), conv, 60, "⠋")
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "hi")
	assert.Contains(t, out, ThinkingText)
}

func TestTurn_AnswerWithSources(t *testing.T) {
	conv, id, err := model.Begin(model.NewConversation("p"), "hi")
	assert.NoError(t, err)
	conv = model.Reduce(conv, id, model.Event{Kind: model.EventSources, Sources: []string{"https://a.com/x", "https://b.com/pic.png"}})
	conv = model.Reduce(conv, id, model.Event{Kind: model.EventDelta, Text: "Hello"})
	conv = model.Reduce(conv, id, model.Event{Kind: model.EventDone})

	out := RenderTranscript(testTheme(), NewMarkdown("dark"), conv, 60, "")
	assert.Contains(t, out, "MindStack")
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "a.com")
	assert.Contains(t, out, "🖼")
	assert.NotContains(t, out, ThinkingText)
}

func TestTranscript_Empty(t *testing.T) {
	out := RenderTranscript(testTheme(), NewMarkdown("dark"), model.NewConversation("p"), 60, "")
	assert.Contains(t, out, "Ask anything")
}

func TestMarkdown_Blank(t *testing.T) {
	assert.Equal(t, "", NewMarkdown("dark").Render("  \n", 40))
	assert.Contains(t, NewMarkdown("light").Render("**bold**", 40), "bold")
}

func TestLanguageForPath(t *testing.T) {
	assert.Equal(t, "Go", LanguageForPath("internal/store/ingest.go"))
	assert.Equal(t, "", LanguageForPath(""))
}

func TestCodeBlock_Truncates(t *testing.T) {
	code := strings.Repeat("line\n", maxCodeLines+5)
	out := NewCodeBlock("text", code).Render()
	assert.Contains(t, out, "5 more lines")
}

func TestStatusBar_DropsHintsThatDoNotFit(t *testing.T) {
	bar := StatusBar{
		Shortcuts: []Shortcut{{"enter", "open"}, {"n", "new project"}, {"q", "quit"}},
		Status:    "3 projects",
		Width:     30,
	}
	out := bar.Render(testTheme())
	assert.Contains(t, out, "enter")
	assert.Contains(t, out, "3 projects")
	assert.NotContains(t, out, "quit")
	assert.LessOrEqual(t, lipgloss.Width(out), 30)
}

func TestHeader(t *testing.T) {
	out := Header{Title: "Projects", Account: "me@example.com", Offline: true, Width: 80}.Render(testTheme())
	assert.Contains(t, out, "MindStack")
	assert.Contains(t, out, "Projects")
	assert.Contains(t, out, "OFFLINE")
	assert.Contains(t, out, "me@example.com")
}
