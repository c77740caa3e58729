// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/ui/components"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
	"github.com/jeranaias/mindstack-tui/internal/util"
)

// =============================================================================
// PROJECT LIST
// =============================================================================

type projectsModel struct {
	deps     Deps
	keys     KeyMap
	projects []api.Project
	meta     api.Meta
	cursor   int
	loading  bool
	err      string

	form projectForm
}

func newProjectsModel(deps Deps, keys KeyMap) projectsModel {
	return projectsModel{deps: deps, keys: keys, loading: true, form: newProjectForm()}
}

func (m projectsModel) Init() tea.Cmd {
	return LoadProjectsCmd(m.deps)
}

// Selected returns the project under the cursor.
func (m projectsModel) Selected() (api.Project, bool) {
	if m.cursor < 0 || m.cursor >= len(m.projects) {
		return api.Project{}, false
	}
	return m.projects[m.cursor], true
}

func (m projectsModel) Update(msg tea.Msg) (projectsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case projectsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = "Could not load projects: " + msg.err.Error()
			return m, nil
		}
		m.err = ""
		m.projects = msg.projects
		m.meta = msg.meta
		m.cursor = min(m.cursor, max(len(m.projects)-1, 0))
		return m, nil

	case projectCreatedMsg:
		if msg.err != nil {
			m.form.busy = false
			m.form.err = createErrorText(msg.err)
			return m, nil
		}
		m.form = newProjectForm()
		m.projects = append([]api.Project{*msg.project}, m.projects...)
		m.cursor = 0
		return m, nil

	case tea.KeyMsg:
		if m.form.open {
			return m.updateForm(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.cursor = max(m.cursor-1, 0)
		case key.Matches(msg, m.keys.Down):
			m.cursor = min(m.cursor+1, max(len(m.projects)-1, 0))
		case key.Matches(msg, m.keys.New):
			m.form = newProjectForm()
			m.form.open = true
			return m, m.form.name.Focus()
		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, LoadProjectsCmd(m.deps)
		case key.Matches(msg, m.keys.Logout):
			return m, func() tea.Msg { return logoutMsg{} }
		case key.Matches(msg, m.keys.Open):
			if p, ok := m.Selected(); ok {
				return m, func() tea.Msg { return openProjectMsg{project: p} }
			}
		}
		return m, nil
	}

	if m.form.open {
		var cmd tea.Cmd
		m.form, cmd = m.form.updateInputs(msg)
		return m, cmd
	}
	return m, nil
}

func (m projectsModel) updateForm(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	if m.form.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Back):
		m.form = newProjectForm()
		return m, nil
	case key.Matches(msg, m.keys.Next), key.Matches(msg, m.keys.Prev):
		return m, m.form.toggleFocus()
	case msg.Type == tea.KeyEnter:
		if m.form.focus == 0 {
			return m, m.form.toggleFocus()
		}
		name := strings.TrimSpace(m.form.name.Value())
		if name == "" {
			m.form.err = "Project name is required."
			return m, nil
		}
		m.form.busy = true
		m.form.err = ""
		return m, CreateProjectCmd(m.deps, name, strings.TrimSpace(m.form.desc.Value()))
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.updateInputs(msg)
	return m, cmd
}

func (m projectsModel) View(theme *styles.Theme, account string, width, height int) string {
	header := components.Header{
		Title:   "Projects",
		Account: account,
		Offline: m.deps.API != nil && m.deps.API.Offline(),
		Width:   width,
	}.Render(theme)

	var status components.StatusBar
	status.Width = width
	if m.form.open {
		status.Shortcuts = shortcuts(m.keys.Next, m.keys.Open, m.keys.Back)
		status.Shortcuts[1].Desc = "create"
	} else {
		status.Shortcuts = shortcuts(m.keys.Up, m.keys.Down, m.keys.Open, m.keys.New, m.keys.Refresh, m.keys.Logout, m.keys.Quit)
	}
	switch {
	case m.loading:
		status.Status = "Loading…"
	case m.meta.Stale:
		status.Status = "cached " + m.meta.CachedAt.Local().Format("Jan 2 15:04")
	}
	footer := status.Render(theme)

	bodyHeight := max(height-lipgloss.Height(header)-lipgloss.Height(footer), 3)
	var body string
	if m.form.open {
		body = lipgloss.Place(width, bodyHeight, lipgloss.Center, lipgloss.Center, m.form.View(theme))
	} else {
		body = m.renderList(theme, width, bodyHeight)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m projectsModel) renderList(theme *styles.Theme, width, height int) string {
	var lines []string
	if m.meta.Stale {
		lines = append(lines, theme.StaleBadge.Render("STALE")+" "+theme.Muted.Render("Showing cached projects."))
	}
	if m.err != "" {
		lines = append(lines, theme.Error.Render(m.err))
	}

	if len(m.projects) == 0 && !m.loading {
		lines = append(lines, "", theme.Muted.Render("No projects yet. Press n to create one."))
		return lipgloss.NewStyle().Width(width).Height(height).Padding(0, 1).Render(strings.Join(lines, "\n"))
	}

	// Two rows per project.
	visible := max((height-len(lines)-1)/2, 1)
	offset := max(m.cursor-visible+1, 0)
	end := min(offset+visible, len(m.projects))
	inner := max(width-4, 10)
	for i := offset; i < end; i++ {
		p := m.projects[i]
		title := util.TruncateWidth(p.Name, inner-14)
		date := p.CreatedDate()
		gap := max(inner-util.StringWidth(title)-util.StringWidth(date), 1)
		row := title + strings.Repeat(" ", gap) + date
		desc := p.Description
		if desc == "" {
			desc = "No description"
		}
		meta := util.TruncateWidth(util.FirstLine(desc), inner)

		style := theme.ListItem
		if i == m.cursor {
			style = theme.ListItemSelected
		}
		lines = append(lines, style.Width(width-2).Render(row), theme.ListMeta.Render(meta))
	}
	if len(m.projects) > visible {
		lines = append(lines, theme.Muted.Render(fmt.Sprintf("%d/%d", m.cursor+1, len(m.projects))))
	}
	return lipgloss.NewStyle().Width(width).Height(height).Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// NEW PROJECT FORM
// =============================================================================

type projectForm struct {
	open  bool
	busy  bool
	err   string
	focus int
	name  textinput.Model
	desc  textinput.Model
}

func newProjectForm() projectForm {
	name := textinput.New()
	name.Placeholder = "Project name"
	name.Prompt = ""
	name.CharLimit = 120
	name.Width = 40

	desc := textinput.New()
	desc.Placeholder = "Description (optional)"
	desc.Prompt = ""
	desc.CharLimit = 500
	desc.Width = 40

	return projectForm{name: name, desc: desc}
}

func (f *projectForm) toggleFocus() tea.Cmd {
	f.focus = 1 - f.focus
	if f.focus == 0 {
		f.desc.Blur()
		return f.name.Focus()
	}
	f.name.Blur()
	return f.desc.Focus()
}

func (f projectForm) updateInputs(msg tea.Msg) (projectForm, tea.Cmd) {
	var cmd tea.Cmd
	if f.focus == 0 {
		f.name, cmd = f.name.Update(msg)
	} else {
		f.desc, cmd = f.desc.Update(msg)
	}
	return f, cmd
}

func (f projectForm) View(theme *styles.Theme) string {
	label := func(text string, focused bool) string {
		if focused {
			return theme.FormFocused.Render("› " + text)
		}
		return theme.FormLabel.Render("  " + text)
	}
	lines := []string{
		theme.FormTitle.Render("New project"),
		label("Name", f.focus == 0),
		"  " + f.name.View(),
		"",
		label("Description", f.focus == 1),
		"  " + f.desc.View(),
	}
	if f.busy {
		lines = append(lines, "", theme.Muted.Render("Creating…"))
	}
	if f.err != "" {
		lines = append(lines, "", theme.FormError.Render(f.err))
	}
	return theme.FormBox.Render(strings.Join(lines, "\n"))
}

func createErrorText(err error) string {
	switch {
	case errors.Is(err, api.ErrNameRequired):
		return "Project name is required."
	case errors.Is(err, api.ErrOffline):
		return "Projects cannot be created while offline."
	default:
		return "Could not create project: " + err.Error()
	}
}
