// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/chat"
	"github.com/jeranaias/mindstack-tui/internal/config"
	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/ui/components"
	"github.com/jeranaias/mindstack-tui/internal/ui/styles"
)

// SessionExpiredNotice is shown on the login screen after a forced sign-out.
const SessionExpiredNotice = "Your session has ended. Please sign in again."

// Deps are the services the UI talks to.
type Deps struct {
	Auth   *auth.Client
	API    *api.CachedClient
	Config *config.Config
	Logger *slog.Logger
}

type screen int

const (
	screenLogin screen = iota
	screenProjects
	screenProject
)

func (s screen) String() string {
	switch s {
	case screenLogin:
		return "login"
	case screenProjects:
		return "projects"
	case screenProject:
		return "project"
	}
	return "unknown"
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the root Bubble Tea model. It owns the screens and routes
// messages to the active one.
type Model struct {
	deps  Deps
	keys  KeyMap
	theme *styles.Theme
	md    *components.Markdown

	screen   screen
	login    loginModel
	projects projectsModel
	project  projectModel

	// One chat session per project, kept while signed in.
	sessions map[string]*chat.Session

	signedOut   chan struct{}
	unsubscribe func()

	width  int
	height int
}

// New creates the root model. The first screen depends on whether a
// session is already stored.
func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	mode := config.DefaultTheme
	if deps.Config != nil {
		mode = deps.Config.UI.Theme
	}
	keys := DefaultKeyMap()
	m := Model{
		deps:      deps,
		keys:      keys,
		theme:     styles.NewTheme(mode),
		md:        components.NewMarkdown(mode),
		login:     newLoginModel(deps, keys),
		projects:  newProjectsModel(deps, keys),
		sessions:  make(map[string]*chat.Session),
		signedOut: make(chan struct{}, 1),
		width:     80,
		height:    24,
	}
	m.unsubscribe = deps.Auth.OnSignedOut(func() { signal(m.signedOut) })
	if deps.Auth.Session().SignedIn {
		m.screen = screenProjects
	}
	return m
}

// Init starts the sign-out watcher and the first load.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		waitFor(m.signedOut, signedOutMsg{reason: SessionExpiredNotice}),
	}
	if m.screen == screenProjects {
		cmds = append(cmds, m.projects.Init())
	}
	return tea.Batch(cmds...)
}

// Update routes a message to the active screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		if m.screen == screenProject {
			m.project = m.project.resize(m.theme, m.md, m.width, m.height)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQ) {
			return m, tea.Quit
		}

	case signedOutMsg:
		rearm := waitFor(m.signedOut, signedOutMsg{reason: SessionExpiredNotice})
		if m.screen == screenLogin {
			return m, rearm
		}
		m.deps.Logger.Info("session ended", "screen", m.screen.String())
		return m.toLogin(msg.reason), rearm

	case logoutMsg:
		m = m.toLogin("Signed out.")
		return m, logoutCmd(m.deps)

	case authDoneMsg:
		if msg.err == nil && !msg.pending {
			m.login = m.login.reset("")
			m.screen = screenProjects
			m.projects = newProjectsModel(m.deps, m.keys)
			return m, m.projects.Init()
		}

	case openProjectMsg:
		m.screen = screenProject
		m.project = newProjectModel(m.deps, m.keys, msg.project, m.session(msg.project.ID))
		m.project = m.project.resize(m.theme, m.md, m.width, m.height)
		return m, m.project.Init()

	case backMsg:
		m.project.close()
		m.screen = screenProjects
		return m, m.projects.Init()

	case projectsLoadedMsg:
		if isSignedOut(msg.err) {
			return m.toLogin(SessionExpiredNotice), nil
		}
	case projectCreatedMsg:
		if isSignedOut(msg.err) {
			return m.toLogin(SessionExpiredNotice), nil
		}
	case capturesLoadedMsg:
		if isSignedOut(msg.err) {
			return m.toLogin(SessionExpiredNotice), nil
		}
	case captureDeletedMsg:
		if isSignedOut(msg.err) {
			return m.toLogin(SessionExpiredNotice), nil
		}
	case chatDoneMsg:
		if isSignedOut(msg.err) {
			return m.toLogin(SessionExpiredNotice), nil
		}
	}

	var cmd tea.Cmd
	switch m.screen {
	case screenLogin:
		m.login, cmd = m.login.Update(msg)
	case screenProjects:
		m.projects, cmd = m.projects.Update(msg)
	case screenProject:
		m.project, cmd = m.project.Update(msg, m.theme, m.md)
	}
	return m, cmd
}

// View renders the active screen.
func (m Model) View() string {
	switch m.screen {
	case screenProjects:
		return m.projects.View(m.theme, m.account(), m.width, m.height)
	case screenProject:
		return m.project.View(m.theme, m.md, m.account(), m.width, m.height)
	default:
		return m.login.View(m.theme, m.width, m.height)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// session returns the chat session for a project, creating it on first use.
func (m Model) session(projectID string) *chat.Session {
	if s, ok := m.sessions[projectID]; ok {
		return s
	}
	idle := chat.DefaultIdleTimeout
	if m.deps.Config != nil {
		idle = m.deps.Config.StreamIdleTimeout()
	}
	s := chat.New(projectID, m.deps.API.Client(), m.deps.Auth, chat.Options{
		IdleTimeout: idle,
		Logger:      m.deps.Logger,
	})
	m.sessions[projectID] = s
	return s
}

// toLogin drops everything tied to the old session and shows the login form.
func (m Model) toLogin(notice string) Model {
	if m.screen == screenProject {
		m.project.close()
	}
	m.screen = screenLogin
	m.sessions = make(map[string]*chat.Session)
	m.projects = newProjectsModel(m.deps, m.keys)
	m.login = m.login.reset(notice)
	return m
}

func (m Model) account() string {
	info := m.deps.Auth.Session()
	if !info.SignedIn {
		return ""
	}
	return info.Email
}

func (m Model) shutdown() {
	if m.screen == screenProject {
		m.project.close()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func logoutCmd(d Deps) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		if err := d.Auth.SignOut(ctx); err != nil {
			d.Logger.Warn("sign out failed", "error", err)
		}
		if err := d.API.Clear(ctx); err != nil {
			d.Logger.Warn("clearing cache failed", "error", err)
		}
		return nil
	}
}

// =============================================================================
// PROGRAM
// =============================================================================

// Run starts the full-screen UI and blocks until the user quits.
func Run(deps Deps) error {
	m := New(deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.shutdown()
	}
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
