// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/config"
	"github.com/jeranaias/mindstack-tui/internal/mockserver"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type harness struct {
	server *mockserver.Server
	deps   Deps
}

func newHarness(t *testing.T, opts mockserver.Options) *harness {
	t.Helper()
	opts.ChunkDelay = -1
	s := mockserver.New(opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ac, err := auth.New(auth.Options{URL: srv.URL, AnonKey: s.AnonKey()})
	require.NoError(t, err)
	t.Cleanup(func() { ac.Close() })

	client, err := api.New(api.Options{BaseURL: srv.URL, Tokens: ac, RatePerSec: 1000})
	require.NoError(t, err)

	cache, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	cfg := config.Default()
	cfg.UI.Theme = "dark"
	return &harness{
		server: s,
		deps: Deps{
			Auth:   ac,
			API:    api.NewCached(client, cache, false, nil),
			Config: cfg,
		},
	}
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	_, err := h.deps.Auth.SignIn(context.Background(), mockserver.DemoEmail, mockserver.DemoPassword)
	require.NoError(t, err)
}

// step feeds msg to the model and returns the result of the command it
// produced, if any. A batch comes back as tea.BatchMsg without running.
func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	if cmd == nil {
		return nm, nil
	}
	return nm, cmd()
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// signedInModel returns a model on the project list with projects loaded.
func signedInModel(t *testing.T, h *harness) Model {
	t.Helper()
	h.signIn(t)
	m := New(h.deps)
	require.Equal(t, screenProjects, m.screen)
	m, _ = step(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	m, _ = step(t, m, LoadProjectsCmd(h.deps)())
	require.NotEmpty(t, m.projects.projects)
	return m
}

// openFirstProject opens the first project and loads its captures.
func openFirstProject(t *testing.T, h *harness, m Model) Model {
	t.Helper()
	m, msg := step(t, m, press("enter"))
	require.IsType(t, openProjectMsg{}, msg)
	m, _ = step(t, m, msg)
	require.Equal(t, screenProject, m.screen)
	m, _ = step(t, m, LoadCapturesCmd(h.deps, m.project.project.ID)())
	require.False(t, m.project.loading)
	return m
}

// =============================================================================
// LOGIN
// =============================================================================

func TestNewStartsOnLoginWithoutSession(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := New(h.deps)

	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "Sign in to MindStack")
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := New(h.deps)
	m.login.email.SetValue(mockserver.DemoEmail)
	m.login.pass.SetValue(mockserver.DemoPassword)
	m.login = m.login.setFocus(fieldSubmit)

	m, msg := step(t, m, press("enter"))
	require.IsType(t, authDoneMsg{}, msg)
	require.NoError(t, msg.(authDoneMsg).err)

	m, _ = step(t, m, msg)
	assert.Equal(t, screenProjects, m.screen)
	assert.True(t, h.deps.Auth.Session().SignedIn)

	m, _ = step(t, m, LoadProjectsCmd(h.deps)())
	assert.Contains(t, m.View(), "Postgres migration")
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := New(h.deps)
	m.login.email.SetValue(mockserver.DemoEmail)
	m.login.pass.SetValue("nope-nope")
	m.login = m.login.setFocus(fieldSubmit)

	m, msg := step(t, m, press("enter"))
	m, _ = step(t, m, msg)

	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "Invalid email or password.")
}

func TestLoginRequiresFields(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := New(h.deps)
	m.login = m.login.setFocus(fieldSubmit)

	m, msg := step(t, m, press("enter"))
	assert.Nil(t, msg)
	assert.Contains(t, m.View(), "Email and password are required.")
}

func TestSignUpPendingShowsConfirmation(t *testing.T) {
	h := newHarness(t, mockserver.Options{ConfirmEmail: true})
	m := New(h.deps)

	m, _ = step(t, m, press("ctrl+t"))
	require.True(t, m.login.signUp)
	assert.Contains(t, m.View(), "Create your MindStack account")

	m.login.email.SetValue("new@example.com")
	m.login.pass.SetValue("longenough")
	m.login = m.login.setFocus(fieldSubmit)
	m, msg := step(t, m, press("enter"))
	m, _ = step(t, m, msg)

	assert.Equal(t, screenLogin, m.screen)
	assert.False(t, m.login.signUp)
	assert.Equal(t, auth.SignUpConfirmationMessage, m.login.notice)
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestCreateProjectRequiresName(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := signedInModel(t, h)

	m, _ = step(t, m, press("n"))
	require.True(t, m.projects.form.open)
	m.projects.form.focus = 1

	m, msg := step(t, m, press("enter"))
	assert.Nil(t, msg)
	assert.Equal(t, "Project name is required.", m.projects.form.err)
}

func TestCreateProject(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := signedInModel(t, h)
	before := len(m.projects.projects)

	m, _ = step(t, m, press("n"))
	m.projects.form.name.SetValue("  Rust rewrite ")
	m.projects.form.focus = 1
	m, msg := step(t, m, press("enter"))
	require.IsType(t, projectCreatedMsg{}, msg)

	m, _ = step(t, m, msg)
	assert.False(t, m.projects.form.open)
	require.Len(t, m.projects.projects, before+1)
	assert.Equal(t, "Rust rewrite", m.projects.projects[0].Name)
}

func TestLogoutReturnsToLogin(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := signedInModel(t, h)

	m, msg := step(t, m, press("L"))
	require.IsType(t, logoutMsg{}, msg)
	m, _ = step(t, m, msg)

	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, "Signed out.", m.login.notice)
	assert.False(t, h.deps.Auth.Session().SignedIn)
}

func TestRevokedSessionRedirectsToLogin(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := signedInModel(t, h)
	h.server.RevokeAll()

	m, _ = step(t, m, LoadProjectsCmd(h.deps)())

	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, SessionExpiredNotice, m.login.notice)
	assert.Empty(t, m.sessions)
}

// =============================================================================
// PROJECT VIEW
// =============================================================================

func TestProjectTimelineAndDelete(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := signedInModel(t, h)
	m = openFirstProject(t, h, m)
	defer m.shutdown()

	p := m.project
	require.Len(t, p.captures, 3)
	assert.Contains(t, m.View(), "Timeline")

	m, _ = step(t, m, press("tab"))
	require.Equal(t, paneTimeline, m.project.focus)

	first := m.project.captures[0].ID
	m, msg := step(t, m, press("d"))
	require.IsType(t, captureDeletedMsg{}, msg)
	assert.Len(t, m.project.captures, 2)
	assert.NoError(t, msg.(captureDeletedMsg).err)

	m, _ = step(t, m, LoadCapturesCmd(h.deps, m.project.project.ID)())
	for _, c := range m.project.captures {
		assert.NotEqual(t, first, c.ID)
	}
}

func TestProjectExpandCapture(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := openFirstProject(t, h, signedInModel(t, h))
	defer m.shutdown()

	m, _ = step(t, m, press("tab"))
	id := m.project.captures[0].ID
	m, _ = step(t, m, press("enter"))
	assert.True(t, m.project.expanded[id])
	m, _ = step(t, m, press("enter"))
	assert.False(t, m.project.expanded[id])
}

func TestProjectChat(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := openFirstProject(t, h, signedInModel(t, h))
	defer m.shutdown()
	require.Equal(t, paneChat, m.project.focus)

	m.project.input.SetValue("what about pgx?")
	m, msg := step(t, m, press("enter"))
	require.IsType(t, chatDoneMsg{}, msg)
	require.NoError(t, msg.(chatDoneMsg).err)
	assert.Empty(t, m.project.input.Value())

	m, _ = step(t, m, msg)
	conv := m.project.conv
	require.Equal(t, 2, conv.Len())
	last := conv.Turns[1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, model.StatusDone, last.Status)
	assert.Contains(t, last.Content, "Postgres migration")
	assert.Contains(t, last.Sources, "https://github.com/jackc/pgx")
	assert.Nil(t, m.project.cancel)

	// The transcript survives leaving and reopening the project.
	m, msg = step(t, m, press("esc"))
	require.IsType(t, backMsg{}, msg)
	m, _ = step(t, m, msg)
	require.Equal(t, screenProjects, m.screen)
	m = openFirstProject(t, h, m)
	assert.Equal(t, 2, m.project.conv.Len())

	m, _ = step(t, m, press("ctrl+l"))
	assert.True(t, m.project.session.Snapshot().IsEmpty())
}

func TestProjectChatIgnoresBlankInput(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := openFirstProject(t, h, signedInModel(t, h))
	defer m.shutdown()

	m.project.input.SetValue("   ")
	_, msg := step(t, m, press("enter"))
	assert.Nil(t, msg)
}

func TestProjectLayout(t *testing.T) {
	h := newHarness(t, mockserver.Options{})
	m := openFirstProject(t, h, signedInModel(t, h))
	defer m.shutdown()

	tl, ch := m.project.paneWidths(m.theme)
	assert.Positive(t, tl)
	assert.Positive(t, ch)

	m, _ = step(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	tl, ch = m.project.paneWidths(m.theme)
	assert.Zero(t, tl)
	assert.Equal(t, 80, ch)
	assert.False(t, strings.Contains(m.View(), "Timeline"))

	m, _ = step(t, m, press("tab"))
	tl, ch = m.project.paneWidths(m.theme)
	assert.Equal(t, 80, tl)
	assert.Zero(t, ch)
}
