// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/chat"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/ui/components"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

type pane int

const (
	paneTimeline pane = iota
	paneChat
)

const inputHeight = 3

// =============================================================================
// PROJECT VIEW
// =============================================================================

// projectModel shows one project: its capture timeline and its chat.
type projectModel struct {
	deps    Deps
	keys    KeyMap
	project api.Project
	session *chat.Session

	captures []api.Capture
	meta     api.Meta
	loading  bool
	loadErr  string
	cursor   int
	expanded map[string]bool

	conv    model.Conversation
	chatErr string
	cancel  context.CancelFunc

	focus    pane
	timeline viewport.Model
	chatView viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width  int
	height int

	changes     chan struct{}
	done        chan struct{}
	closeOnce   *sync.Once
	unsubscribe func()
}

func newProjectModel(deps Deps, keys KeyMap, project api.Project, session *chat.Session) projectModel {
	input := textarea.New()
	input.Placeholder = "Ask about this project…"
	input.ShowLineNumbers = false
	input.Prompt = "┃ "
	input.CharLimit = 4000
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline = keys.Newline
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := projectModel{
		deps:      deps,
		keys:      keys,
		project:   project,
		session:   session,
		loading:   true,
		expanded:  make(map[string]bool),
		conv:      session.Snapshot(),
		focus:     paneChat,
		timeline:  viewport.New(0, 0),
		chatView:  viewport.New(0, 0),
		input:     input,
		spinner:   sp,
		changes:   make(chan struct{}, 1),
		done:      make(chan struct{}),
		closeOnce: &sync.Once{},
	}
	changes := m.changes
	m.unsubscribe = session.Subscribe(func(model.Conversation) { signal(changes) })
	return m
}

func (m projectModel) Init() tea.Cmd {
	return tea.Batch(
		LoadCapturesCmd(m.deps, m.project.ID),
		m.waitForChange(),
		m.spinner.Tick,
		textarea.Blink,
	)
}

// close stops the stream and the change subscription. Safe to call twice.
func (m projectModel) close() {
	if m.closeOnce == nil {
		return
	}
	m.closeOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		close(m.done)
	})
}

func (m projectModel) waitForChange() tea.Cmd {
	changes, done, id := m.changes, m.done, m.project.ID
	return func() tea.Msg {
		select {
		case <-changes:
			return conversationChangedMsg{projectID: id}
		case <-done:
			return nil
		}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

func (m projectModel) Update(msg tea.Msg, theme *styles.Theme, md *components.Markdown) (projectModel, tea.Cmd) {
	switch msg := msg.(type) {
	case capturesLoadedMsg:
		if msg.projectID != m.project.ID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.loadErr = "Could not load captures: " + msg.err.Error()
		} else {
			m.loadErr = ""
			m.captures = msg.captures
			m.meta = msg.meta
			m.cursor = min(m.cursor, max(len(m.captures)-1, 0))
		}
		m.renderTimeline(theme, md)
		return m, nil

	case captureDeletedMsg:
		if msg.err != nil {
			m.deps.Logger.Warn("delete capture failed", "capture", msg.id, "error", msg.err)
		}
		return m, nil

	case conversationChangedMsg:
		if msg.projectID != m.project.ID {
			return m, nil
		}
		m.conv = m.session.Snapshot()
		m.renderChat(theme, md)
		return m, m.waitForChange()

	case chatDoneMsg:
		if msg.projectID != m.project.ID {
			return m, nil
		}
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		if errors.Is(msg.err, chat.ErrBusy) {
			m.chatErr = "Wait for the current answer to finish."
		}
		m.conv = m.session.Snapshot()
		m.renderChat(theme, md)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.session.Busy() {
			m.renderChat(theme, md)
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg, theme, md)
	}

	if m.focus == paneChat {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m projectModel) handleKey(msg tea.KeyMsg, theme *styles.Theme, md *components.Markdown) (projectModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
			return m, nil
		}
		return m, func() tea.Msg { return backMsg{} }
	case key.Matches(msg, m.keys.Next), key.Matches(msg, m.keys.Prev):
		m = m.switchFocus()
		return m.resize(theme, md, m.width, m.height), nil
	}

	if m.focus == paneTimeline {
		return m.handleTimelineKey(msg, theme, md)
	}
	return m.handleChatKey(msg, theme, md)
}

func (m projectModel) handleTimelineKey(msg tea.KeyMsg, theme *styles.Theme, md *components.Markdown) (projectModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.cursor = min(m.cursor+1, max(len(m.captures)-1, 0))
	case key.Matches(msg, m.keys.Open):
		if c, ok := m.selected(); ok {
			m.expanded[c.ID] = !m.expanded[c.ID]
		}
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, LoadCapturesCmd(m.deps, m.project.ID)
	case key.Matches(msg, m.keys.Delete):
		c, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.captures = append(m.captures[:m.cursor:m.cursor], m.captures[m.cursor+1:]...)
		delete(m.expanded, c.ID)
		m.cursor = min(m.cursor, max(len(m.captures)-1, 0))
		m.renderTimeline(theme, md)
		return m, DeleteCaptureCmd(m.deps, c.ID)
	case key.Matches(msg, m.keys.PageUp):
		m.timeline.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.timeline.HalfViewDown()
		return m, nil
	default:
		return m, nil
	}
	m.renderTimeline(theme, md)
	return m, nil
}

func (m projectModel) handleChatKey(msg tea.KeyMsg, theme *styles.Theme, md *components.Markdown) (projectModel, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEnter && !msg.Alt:
		return m.send()
	case key.Matches(msg, m.keys.Clear):
		if err := m.session.Clear(); err != nil {
			m.chatErr = "Wait for the current answer to finish."
			return m, nil
		}
		m.chatErr = ""
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.chatView.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.chatView.HalfViewDown()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m projectModel) send() (projectModel, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if m.session.Busy() {
		m.chatErr = "Wait for the current answer to finish."
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.chatErr = ""
	m.input.Reset()
	m.chatView.GotoBottom()
	return m, SendChatCmd(ctx, m.session, text)
}

func (m projectModel) switchFocus() projectModel {
	if m.focus == paneChat {
		m.focus = paneTimeline
		m.input.Blur()
	} else {
		m.focus = paneChat
		m.input.Focus()
	}
	return m
}

func (m projectModel) selected() (api.Capture, bool) {
	if m.cursor < 0 || m.cursor >= len(m.captures) {
		return api.Capture{}, false
	}
	return m.captures[m.cursor], true
}

// =============================================================================
// LAYOUT
// =============================================================================

// paneWidths returns the timeline and chat widths. A zero width means the
// pane is hidden.
func (m projectModel) paneWidths(theme *styles.Theme) (int, int) {
	if theme.GetLayoutMode() == styles.LayoutWide {
		tl := m.width * 45 / 100
		return tl, m.width - tl - 1
	}
	if m.focus == paneTimeline {
		return m.width, 0
	}
	return 0, m.width
}

func (m projectModel) bodyHeight() int {
	// header, pane title, status bar
	return max(m.height-4, 4)
}

func (m projectModel) resize(theme *styles.Theme, md *components.Markdown, width, height int) projectModel {
	m.width, m.height = width, height
	tlWidth, chatWidth := m.paneWidths(theme)
	body := m.bodyHeight()

	m.timeline.Width = max(tlWidth, 1)
	m.timeline.Height = body

	m.input.SetWidth(max(chatWidth-2, 10))
	m.chatView.Width = max(chatWidth, 1)
	m.chatView.Height = max(body-inputHeight-2, 2)

	m.renderTimeline(theme, md)
	m.renderChat(theme, md)
	return m
}

func (m *projectModel) renderTimeline(theme *styles.Theme, md *components.Markdown) {
	width := m.timeline.Width
	var parts []string
	if m.meta.Stale {
		parts = append(parts, theme.StaleBadge.Render("STALE")+" "+theme.Muted.Render("Showing cached captures."))
	}
	if m.loadErr != "" {
		parts = append(parts, theme.Error.Render(m.loadErr))
	}
	if len(m.captures) == 0 {
		if m.loading {
			parts = append(parts, theme.Muted.Render("Loading captures…"))
		} else {
			parts = append(parts, theme.Muted.Render("Nothing captured in this project yet."))
		}
		m.timeline.SetContent(strings.Join(parts, "\n"))
		return
	}

	prefix := lipgloss.Height(strings.Join(parts, "\n"))
	if len(parts) == 0 {
		prefix = 0
	}
	top, bottom := 0, 0
	line := prefix
	for i, c := range m.captures {
		card := components.CaptureCard{
			Capture:  c,
			Width:    width,
			Selected: i == m.cursor && m.focus == paneTimeline,
			Expanded: m.expanded[c.ID],
		}.Render(theme, md)
		h := lipgloss.Height(card)
		if i == m.cursor {
			top, bottom = line, line+h
		}
		line += h
		parts = append(parts, card)
	}
	m.timeline.SetContent(strings.Join(parts, "\n"))

	switch {
	case top < m.timeline.YOffset:
		m.timeline.SetYOffset(top)
	case bottom > m.timeline.YOffset+m.timeline.Height:
		m.timeline.SetYOffset(bottom - m.timeline.Height)
	}
}

func (m *projectModel) renderChat(theme *styles.Theme, md *components.Markdown) {
	follow := m.chatView.AtBottom() || m.session.Busy()
	m.chatView.SetContent(components.RenderTranscript(theme, md, m.conv, m.chatView.Width, m.spinner.View()))
	if follow {
		m.chatView.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

func (m projectModel) View(theme *styles.Theme, md *components.Markdown, account string, width, height int) string {
	header := components.Header{
		Title:   m.project.Name,
		Account: account,
		Offline: m.deps.API != nil && m.deps.API.Offline(),
		Width:   width,
	}.Render(theme)

	tlWidth, chatWidth := m.paneWidths(theme)
	var panes []string
	if tlWidth > 0 {
		title := theme.SectionLabel.Render("Timeline")
		panes = append(panes, lipgloss.JoinVertical(lipgloss.Left, title, m.timeline.View()))
	}
	if tlWidth > 0 && chatWidth > 0 {
		panes = append(panes, strings.Repeat("│\n", m.bodyHeight())+"│")
	}
	if chatWidth > 0 {
		title := theme.SectionLabel.Render("Chat")
		inputStyle := theme.Input
		if m.focus == paneChat {
			inputStyle = theme.InputFocused
		}
		input := inputStyle.Width(max(chatWidth-2, 10)).Render(m.input.View())
		panes = append(panes, lipgloss.JoinVertical(lipgloss.Left, title, m.chatView.View(), input))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, panes...)
	body = lipgloss.NewStyle().Height(m.bodyHeight() + 1).MaxHeight(m.bodyHeight() + 1).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusBar(theme, width))
}

func (m projectModel) statusBar(theme *styles.Theme, width int) string {
	bar := components.StatusBar{Width: width}
	if m.focus == paneTimeline {
		bar.Shortcuts = shortcuts(m.keys.Next, m.keys.Up, m.keys.Down, m.keys.Open, m.keys.Delete, m.keys.Refresh, m.keys.Back)
		bar.Shortcuts[3].Desc = "expand"
	} else {
		bar.Shortcuts = shortcuts(m.keys.Send, m.keys.Newline, m.keys.Next, m.keys.Clear, m.keys.Back)
	}

	switch {
	case m.chatErr != "":
		bar.Status = m.chatErr
	case m.session.Busy():
		bar.Status = m.spinner.View() + " streaming, esc to stop"
	case m.loading:
		bar.Status = "Loading…"
	case m.meta.Stale:
		bar.Status = "cached " + m.meta.CachedAt.Local().Format("Jan 2 15:04")
	}
	return bar.Render(theme)
}
