// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// maxCodeLines caps how much of a diff or log a card shows.
const maxCodeLines = 40

// CodeBlock is a highlighted snippet inside a bordered box.
type CodeBlock struct {
	Language    string
	Title       string
	Code        string
	MaxWidth    int
	LineNumbers bool
}

// NewCodeBlock creates a code block.
func NewCodeBlock(language, code string) CodeBlock {
	return CodeBlock{
		Language: language,
		Code:     code,
		MaxWidth: 80,
	}
}

// Render renders the code block with styling.
func (c CodeBlock) Render() string {
	code := strings.TrimRight(c.Code, "\n ")
	lines := strings.Split(code, "\n")
	var more int
	if len(lines) > maxCodeLines {
		more = len(lines) - maxCodeLines
		code = strings.Join(lines[:maxCodeLines], "\n")
	}

	highlighted := strings.Split(highlightCode(code, c.Language), "\n")
	if c.LineNumbers {
		lineNum := lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Width(4).
			Align(lipgloss.Right).
			MarginRight(1)
		for i := range highlighted {
			highlighted[i] = lineNum.Render(strconv.Itoa(i+1)) + highlighted[i]
		}
	}
	body := strings.Join(highlighted, "\n")
	if more > 0 {
		body += "\n" + lipgloss.NewStyle().Foreground(styles.TextMuted).
			Render("… "+strconv.Itoa(more)+" more lines")
	}

	var header string
	if c.Title != "" {
		header = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Bold(true).
			Render(c.Title) + "\n"
	}

	maxWidth := c.MaxWidth
	if maxWidth < 20 {
		maxWidth = 20
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(header + body)
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// highlightCode applies terminal syntax highlighting. The code is returned
// unchanged when highlighting fails.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// LanguageForPath returns the chroma language name for a file path, or ""
// when none matches.
func LanguageForPath(path string) string {
	if path == "" {
		return ""
	}
	if lexer := lexers.Match(path); lexer != nil {
		return lexer.Config().Name
	}
	return ""
}

// RenderDiff renders an IDE diff.
func RenderDiff(diff, path string, width int) string {
	title := "Diff"
	if path != "" {
		title += " · " + path
	}
	return CodeBlock{Language: "diff", Title: title, Code: diff, MaxWidth: width}.Render()
}

// RenderLog renders an error log.
func RenderLog(log string, width int) string {
	return CodeBlock{Language: "text", Title: "Error log", Code: log, MaxWidth: width, LineNumbers: true}.Render()
}
