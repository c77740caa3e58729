// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/chat"
	"github.com/jeranaias/mindstack-tui/internal/config"
	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/mockserver"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/storage"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		argv  []string
		cmd   Command
		check func(t *testing.T, a Args)
	}{
		{
			name: "no args starts the tui",
			argv: nil,
			cmd:  CmdTUI,
		},
		{
			name: "login with email",
			argv: []string{"login", "dev@example.com"},
			cmd:  CmdLogin,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "dev@example.com", a.Query)
			},
		},
		{
			name: "register alias",
			argv: []string{"register"},
			cmd:  CmdSignup,
		},
		{
			name: "projects defaults to list",
			argv: []string{"projects"},
			cmd:  CmdProjects,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "list", a.Subcommand)
			},
		},
		{
			name: "projects create joins the name",
			argv: []string{"p", "create", "Rust", "rewrite", "--description", "port it"},
			cmd:  CmdProjects,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "create", a.Subcommand)
				assert.Equal(t, "Rust rewrite", a.Query)
				assert.Equal(t, "port it", a.Flags.Flag("description"))
			},
		},
		{
			name: "captures delete",
			argv: []string{"captures", "postgres", "delete", "abc"},
			cmd:  CmdCaptures,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "postgres", a.Project)
				assert.Equal(t, "delete", a.Subcommand)
				assert.Equal(t, "abc", a.Query)
			},
		},
		{
			name: "ask keeps the question after --raw",
			argv: []string{"ask", "postgres", "--raw", "what", "changed"},
			cmd:  CmdAsk,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "postgres", a.Project)
				assert.Equal(t, "what changed", a.Query)
				assert.True(t, a.Flags.BoolFlag("raw"))
			},
		},
		{
			name: "global flags before the command",
			argv: []string{"--offline", "-q", "--json", "projects"},
			cmd:  CmdProjects,
			check: func(t *testing.T, a Args) {
				assert.True(t, a.Offline)
				assert.True(t, a.Quiet)
				assert.True(t, a.JSON)
			},
		},
		{
			name: "config set",
			argv: []string{"config", "set", "ui.theme", "light"},
			cmd:  CmdConfig,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, "ui.theme", a.ConfigKey)
				assert.Equal(t, "light", a.ConfigVal)
			},
		},
		{
			name: "config defaults to show",
			argv: []string{"config"},
			cmd:  CmdConfig,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "show", a.Subcommand)
			},
		},
		{
			name: "version flag",
			argv: []string{"--version"},
			cmd:  CmdVersion,
		},
		{
			name: "unknown command",
			argv: []string{"frobnicate"},
			cmd:  CmdUnknown,
			check: func(t *testing.T, a Args) {
				assert.Equal(t, "frobnicate", a.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.argv)
			assert.Equal(t, tt.cmd, cmd, "got %s", cmd)
			require.NotNil(t, args.Flags)
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"delete", "--yes", "--limit=5", "-x", "val", "id1", "--", "--not-a-flag"})

	assert.Equal(t, "delete", p.Subcommand())
	assert.True(t, p.BoolFlag("yes"))
	assert.Equal(t, "val", p.Flag("x"))
	assert.Equal(t, "fallback", p.FlagOrDefault("missing", "fallback"))
	assert.True(t, p.HasFlag("--limit"))
	assert.False(t, p.HasFlag("missing"))
	assert.Equal(t, []string{"delete", "id1", "--not-a-flag"}, p.PositionalFrom(0))
	assert.Equal(t, 3, p.PositionalCount())
	assert.Equal(t, "", p.Positional(9))

	n, err := p.FlagInt("limit")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = NewArgParser([]string{"--limit", "many"}).FlagInt("limit")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "Y", "true", "1", "on"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"no", "N", "false", "0", "off"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err, s)
		assert.False(t, v, s)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

// =============================================================================
// PROJECT MATCHING AND ERRORS
// =============================================================================

func TestMatchProject(t *testing.T) {
	projects := []api.Project{
		{ID: "p1", Name: "Postgres migration"},
		{ID: "p2", Name: "Post-mortems"},
		{ID: "p3", Name: "Rust"},
	}

	p, err := matchProject(projects, "p3")
	require.NoError(t, err)
	assert.Equal(t, "Rust", p.Name)

	p, err = matchProject(projects, "postgres")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	p, err = matchProject(projects, "RUST")
	require.NoError(t, err)
	assert.Equal(t, "p3", p.ID)

	_, err = matchProject(projects, "post")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = matchProject(projects, "go")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, ExitSuccess},
		{NewUsageError("bad", ""), ExitUsageError},
		{NewValidationError("email", "", "is required"), ExitUsageError},
		{auth.ErrNotConfigured, ExitConfigError},
		{fmt.Errorf("login: %w", auth.ErrInvalidCredentials), ExitAuthError},
		{auth.ErrNoSession, ExitAuthError},
		{api.ErrUnauthorized, ExitAuthError},
		{chat.ErrSignedOut, ExitAuthError},
		{context.DeadlineExceeded, ExitTimeoutError},
		{&api.APIError{Status: 503}, ExitNetworkError},
		{errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, GetExitCode(tt.err), "%v", tt.err)
	}
}

func TestDisplayErrorHint(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, auth.ErrNoSession)
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "mindstack login")

	buf.Reset()
	DisplayError(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestAnswerErrorStripsPrefix(t *testing.T) {
	err := answerError(model.ErrorPrefix + "model overloaded")
	assert.ErrorIs(t, err, errAnswerFailed)
	assert.NotContains(t, err.Error(), model.ErrorPrefix)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestPrintCapturesSeparatesEntries(t *testing.T) {
	var buf bytes.Buffer
	printCaptures(&buf, []api.Capture{
		{ID: "c1", CaptureType: api.CaptureUserNote, PageTitle: "first"},
		{ID: "c2", CaptureType: api.CaptureWebText, PageTitle: "second"},
	}, 80)

	out := buf.String()
	rules := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "─") {
			rules++
		}
	}
	assert.Equal(t, 1, rules, out)
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "─"))
	assert.Less(t, strings.Index(out, "─"), strings.Index(out, "second"))
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

func TestStreamPrinter(t *testing.T) {
	var buf bytes.Buffer
	sp := &streamPrinter{w: &buf}

	conv := func(id, content string) model.Conversation {
		c := model.NewConversation("p1")
		c.Turns = []model.Turn{
			{ID: "u", Role: model.RoleUser, Content: "q"},
			{ID: id, Role: model.RoleAssistant, Content: content},
		}
		return c
	}

	sp.update(conv("a1", "Hello"))
	sp.update(conv("a1", "Hello"))
	sp.update(conv("a1", "Hello world"))
	sp.finish()
	assert.Equal(t, "Hello world\n", buf.String())

	buf.Reset()
	sp.reset()
	sp.update(conv("a2", "Again"))
	sp.finish()
	assert.Equal(t, "Again\n", buf.String())
}

func TestStreamPrinterSkipsFailedTurns(t *testing.T) {
	var buf bytes.Buffer
	sp := &streamPrinter{w: &buf}

	c := model.NewConversation("p1")
	c.Turns = []model.Turn{{ID: "a", Role: model.RoleAssistant, Content: model.ErrorPrefix + "nope", Status: model.StatusError}}
	sp.update(c)
	sp.finish()
	assert.Empty(t, buf.String())
}

// =============================================================================
// COMMANDS AGAINST THE DEV SERVER
// =============================================================================

type testEnv struct {
	*env
	server *mockserver.Server
	out    *bytes.Buffer
	errOut *bytes.Buffer
	cache  *storage.Cache
	client *api.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := mockserver.New(mockserver.Options{ChunkDelay: -1})
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

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testEnv{
		env: &env{
			cfg:    config.Default(),
			logger: logging.Discard(),
			auth:   ac,
			cache:  cache,
			api:    api.NewCached(client, cache, false, nil),
			in:     strings.NewReader(""),
			out:    out,
			errOut: errOut,
		},
		server: s,
		out:    out,
		errOut: errOut,
		cache:  cache,
		client: client,
	}
}

func (te *testEnv) signIn(t *testing.T) {
	t.Helper()
	_, err := te.auth.SignIn(context.Background(), mockserver.DemoEmail, mockserver.DemoPassword)
	require.NoError(t, err)
}

func (te *testEnv) reset() {
	te.out.Reset()
	te.errOut.Reset()
}

func parsed(argv ...string) Args {
	_, args := ParseArgs(argv)
	return args
}

func TestHandleLogin(t *testing.T) {
	te := newTestEnv(t)
	te.in = strings.NewReader(mockserver.DemoPassword + "\n")

	require.NoError(t, HandleLogin(te.env, parsed("login", mockserver.DemoEmail), false))
	assert.Contains(t, te.out.String(), "Signed in as "+mockserver.DemoEmail)
	assert.True(t, te.auth.Session().SignedIn)
}

func TestHandleLoginPromptsForEmail(t *testing.T) {
	te := newTestEnv(t)
	te.in = strings.NewReader(mockserver.DemoEmail + "\n" + mockserver.DemoPassword + "\n")

	require.NoError(t, HandleLogin(te.env, parsed("login"), false))
	assert.Contains(t, te.errOut.String(), "Email: ")
	assert.True(t, te.auth.Session().SignedIn)
}

func TestHandleLoginWrongPassword(t *testing.T) {
	te := newTestEnv(t)
	te.in = strings.NewReader("hunter2\n")

	err := HandleLogin(te.env, parsed("login", mockserver.DemoEmail), false)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}

func TestHandleLoginEmptyPassword(t *testing.T) {
	te := newTestEnv(t)
	te.in = strings.NewReader("\n")

	err := HandleLogin(te.env, parsed("login", mockserver.DemoEmail), false)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestHandleWhoami(t *testing.T) {
	te := newTestEnv(t)
	assert.ErrorIs(t, HandleWhoami(te.env, parsed("whoami")), auth.ErrNoSession)

	te.signIn(t)
	te.json = true
	require.NoError(t, HandleWhoami(te.env, parsed("whoami")))

	var got whoami
	require.NoError(t, json.Unmarshal(te.out.Bytes(), &got))
	assert.True(t, got.SignedIn)
	assert.Equal(t, mockserver.DemoEmail, got.Email)
	assert.NotEmpty(t, got.UserID)
	assert.False(t, got.Offline)
}

func TestHandleLogout(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)

	require.NoError(t, HandleLogout(te.env))
	assert.Contains(t, te.out.String(), "Signed out.")
	assert.False(t, te.auth.Session().SignedIn)

	te.reset()
	require.NoError(t, HandleLogout(te.env))
	assert.Contains(t, te.out.String(), "Not signed in.")
}

func TestHandleProjectsList(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)

	require.NoError(t, HandleProjects(te.env, parsed("projects")))
	assert.Contains(t, te.out.String(), "Postgres migration")

	te.reset()
	te.json = true
	require.NoError(t, HandleProjects(te.env, parsed("projects")))
	var projects []api.Project
	require.NoError(t, json.Unmarshal(te.out.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "Postgres migration", projects[0].Name)
}

func TestHandleProjectsCreate(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)

	err := HandleProjects(te.env, parsed("projects", "create"))
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)

	require.NoError(t, HandleProjects(te.env, parsed("projects", "create", "Rust", "rewrite", "--description", "port it")))
	assert.Contains(t, te.out.String(), "Created Rust rewrite")

	projects, _, err := te.api.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	var found bool
	for _, p := range projects {
		if p.Name == "Rust rewrite" {
			found = true
			assert.Equal(t, "port it", p.Description)
		}
	}
	assert.True(t, found)
}

func TestHandleProjectsSignedOut(t *testing.T) {
	te := newTestEnv(t)
	err := HandleProjects(te.env, parsed("projects"))
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}

func TestHandleProjectsOfflineUsesCache(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)
	require.NoError(t, HandleProjects(te.env, parsed("projects")))

	te.reset()
	te.api = api.NewCached(te.client, te.cache, true, nil)
	require.NoError(t, HandleProjects(te.env, parsed("projects")))
	assert.Contains(t, te.out.String(), "Postgres migration")
	assert.Contains(t, te.errOut.String(), "Showing cached data")

	err := HandleProjects(te.env, parsed("projects", "create", "Nope"))
	assert.ErrorIs(t, err, api.ErrOffline)
}

func TestHandleCapturesListAndDelete(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)
	te.json = true

	require.NoError(t, HandleCaptures(te.env, parsed("captures", "postgres")))
	var captures []api.Capture
	require.NoError(t, json.Unmarshal(te.out.Bytes(), &captures))
	require.Len(t, captures, 3)

	id := captures[0].ID
	te.reset()
	te.json = false
	te.in = strings.NewReader("n\n")
	require.NoError(t, HandleCaptures(te.env, parsed("captures", "postgres", "delete", id)))
	assert.Contains(t, te.out.String(), "Cancelled.")

	te.reset()
	require.NoError(t, HandleCaptures(te.env, parsed("captures", "postgres", "delete", id, "--yes")))
	assert.Contains(t, te.out.String(), "Deleted "+id)

	te.reset()
	te.json = true
	require.NoError(t, HandleCaptures(te.env, parsed("captures", "postgres")))
	captures = nil
	require.NoError(t, json.Unmarshal(te.out.Bytes(), &captures))
	assert.Len(t, captures, 2)
}

func TestHandleCapturesUnknownProject(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)

	err := HandleCaptures(te.env, parsed("captures", "kubernetes"))
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHandleAskRaw(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)

	require.NoError(t, HandleAsk(te.env, parsed("ask", "postgres", "--raw", "what", "about", "pgx?")))
	out := te.out.String()
	assert.Contains(t, out, "Postgres migration")
	assert.Contains(t, out, "pgx")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "https://github.com/jackc/pgx")
}

func TestHandleAskQuietHidesSources(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)
	te.quiet = true

	require.NoError(t, HandleAsk(te.env, parsed("ask", "postgres", "pgx")))
	assert.Contains(t, te.out.String(), "Postgres migration")
	assert.NotContains(t, te.out.String(), "Sources:")
	assert.Empty(t, te.errOut.String())
}

func TestHandleAskServerError(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)

	err := HandleAsk(te.env, parsed("ask", "postgres", "summarize "+mockserver.FailMarker))
	assert.ErrorIs(t, err, errAnswerFailed)
}

func TestHandleAskRequiresQuestion(t *testing.T) {
	te := newTestEnv(t)
	err := HandleAsk(te.env, parsed("ask", "postgres"))
	var uerr *UsageError
	assert.ErrorAs(t, err, &uerr)
}

func TestHandleAskSignedOut(t *testing.T) {
	te := newTestEnv(t)
	te.signIn(t)
	te.server.RevokeAll()

	err := HandleAsk(te.env, parsed("ask", "postgres", "pgx"))
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}
