// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

const (
	fieldEmail = iota
	fieldPassword
	fieldSubmit
)

// loginModel is the sign-in / sign-up form.
type loginModel struct {
	deps   Deps
	keys   KeyMap
	email  textinput.Model
	pass   textinput.Model
	focus  int
	signUp bool
	busy   bool
	err    string
	notice string
}

func newLoginModel(deps Deps, keys KeyMap) loginModel {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = ""
	email.CharLimit = 254
	email.Width = 36
	email.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.Prompt = ""
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 128
	pass.Width = 36

	return loginModel{deps: deps, keys: keys, email: email, pass: pass}
}

// reset clears the password and shows notice.
func (m loginModel) reset(notice string) loginModel {
	m.pass.SetValue("")
	m.busy = false
	m.err = ""
	m.notice = notice
	return m.setFocus(fieldEmail)
}

func (m loginModel) setFocus(f int) loginModel {
	m.focus = f
	m.email.Blur()
	m.pass.Blur()
	switch f {
	case fieldEmail:
		m.email.Focus()
	case fieldPassword:
		m.pass.Focus()
	}
	return m
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case authDoneMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.err = authErrorText(msg.err)
			m.notice = ""
		case msg.pending:
			m.err = ""
			m.notice = auth.SignUpConfirmationMessage
			m.signUp = false
			m.pass.SetValue("")
			m = m.setFocus(fieldEmail)
		}
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Mode):
			m.signUp = !m.signUp
			m.err = ""
			return m, nil
		case key.Matches(msg, m.keys.Next), msg.String() == "down":
			return m.setFocus((m.focus + 1) % 3), nil
		case key.Matches(msg, m.keys.Prev), msg.String() == "up":
			return m.setFocus((m.focus + 2) % 3), nil
		case msg.Type == tea.KeyEnter:
			if m.focus == fieldEmail {
				return m.setFocus(fieldPassword), nil
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldEmail:
		m.email, cmd = m.email.Update(msg)
	case fieldPassword:
		m.pass, cmd = m.pass.Update(msg)
	}
	return m, cmd
}

func (m loginModel) submit() (loginModel, tea.Cmd) {
	email := strings.TrimSpace(m.email.Value())
	password := m.pass.Value()
	if email == "" || password == "" {
		m.err = "Email and password are required."
		return m, nil
	}
	m.busy = true
	m.err = ""
	m.notice = ""
	return m, SignInCmd(m.deps, email, password, m.signUp)
}

func (m loginModel) View(theme *styles.Theme, width, height int) string {
	title := "Sign in to MindStack"
	action := "Sign in"
	toggle := "No account yet? ctrl+t to sign up"
	if m.signUp {
		title = "Create your MindStack account"
		action = "Sign up"
		toggle = "Have an account? ctrl+t to sign in"
	}

	label := func(text string, focused bool) string {
		if focused {
			return theme.FormFocused.Render("› " + text)
		}
		return theme.FormLabel.Render("  " + text)
	}
	button := theme.Button.Render(action)
	if m.focus == fieldSubmit {
		button = theme.ButtonActive.Render(action)
	}
	if m.busy {
		button = theme.Muted.Render("Please wait…")
	}

	lines := []string{
		theme.FormTitle.Render(title),
		label("Email", m.focus == fieldEmail),
		"  " + m.email.View(),
		"",
		label("Password", m.focus == fieldPassword),
		"  " + m.pass.View(),
		"",
		button,
		"",
		theme.FormHint.Render(toggle),
	}
	if m.err != "" {
		lines = append(lines, "", theme.FormError.Render(m.err))
	}
	if m.notice != "" {
		lines = append(lines, "", theme.FormNotice.Width(44).Render(m.notice))
	}
	if !m.deps.Auth.IsConfigured() {
		lines = append(lines, "", theme.Warning.Width(44).Render("Auth is not configured. Set auth.url and auth.anon_key with `mindstack config set`."))
	}

	box := theme.FormBox.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// authErrorText turns an auth failure into a one-line message.
func authErrorText(err error) string {
	var authErr *auth.Error
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, auth.ErrNotConfigured):
		return "Auth is not configured."
	case errors.As(err, &authErr) && authErr.Message != "":
		return authErr.Message
	default:
		return err.Error()
	}
}
