// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/mindstack-tui/internal/api"
)

// Demo account seeded into every server.
const (
	DemoEmail    = "demo@mindstack.dev"
	DemoPassword = "mindstack"
)

var (
	errUserExists = errors.New("user already registered")
	errNotFound   = errors.New("not found")
)

type account struct {
	id       string
	email    string
	password string
}

type grant struct {
	userID    string
	expiresAt time.Time
}

// store holds all server state.
type store struct {
	mu sync.RWMutex

	users    map[string]*account // by email
	access   map[string]grant    // access token -> grant
	refresh  map[string]string   // refresh token -> user ID
	projects map[string][]api.Project
	captures map[string][]api.Capture // by project ID
	owners   map[string]string        // project ID -> user ID

	factors    map[string][]*factor // by user ID
	challenges map[string]string    // challenge ID -> factor ID
}

func newStore() *store {
	return &store{
		users:    make(map[string]*account),
		access:   make(map[string]grant),
		refresh:  make(map[string]string),
		projects: make(map[string][]api.Project),
		captures: make(map[string][]api.Capture),
		owners:   make(map[string]string),

		factors:    make(map[string][]*factor),
		challenges: make(map[string]string),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *store) addUser(email, password string) (*account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return nil, errUserExists
	}
	a := &account{id: uuid.NewString(), email: email, password: password}
	s.users[email] = a
	return a, nil
}

func (s *store) user(email string) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	return a, ok
}

func (s *store) userByID(id string) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.users {
		if a.id == id {
			return a, true
		}
	}
	return nil, false
}

// issue creates a token pair for a user.
func (s *store) issue(userID string, ttl time.Duration, now time.Time) (accessToken, refreshToken string, expiresAt time.Time) {
	accessToken = "at-" + uuid.NewString()
	refreshToken = "rt-" + uuid.NewString()
	expiresAt = now.Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[accessToken] = grant{userID: userID, expiresAt: expiresAt}
	s.refresh[refreshToken] = userID
	return accessToken, refreshToken, expiresAt
}

// exchange consumes a refresh token.
func (s *store) exchange(refreshToken string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[refreshToken]
	if ok {
		delete(s.refresh, refreshToken)
	}
	return userID, ok
}

// authorize returns the user behind a live access token.
func (s *store) authorize(token string, now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.access[token]
	if !ok || !now.Before(g.expiresAt) {
		return "", false
	}
	return g.userID, true
}

func (s *store) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, token)
}

// revokeAll drops every token so the next API call gets a 401.
func (s *store) revokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]grant)
	s.refresh = make(map[string]string)
	s.challenges = make(map[string]string)
}

// =============================================================================
// PROJECTS AND CAPTURES
// =============================================================================

func (s *store) listProjects(userID string) []api.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]api.Project{}, s.projects[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *store) addProject(userID string, p api.Project) api.Project {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[userID] = append(s.projects[userID], p)
	s.owners[p.ID] = userID
	return p
}

func (s *store) project(userID, projectID string) (api.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owners[projectID] != userID {
		return api.Project{}, false
	}
	for _, p := range s.projects[userID] {
		if p.ID == projectID {
			return p, true
		}
	}
	return api.Project{}, false
}

func (s *store) listCaptures(userID, projectID string) ([]api.Capture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owners[projectID] != userID {
		return nil, errNotFound
	}
	out := append([]api.Capture{}, s.captures[projectID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *store) addCapture(projectID string, c api.Capture) api.Capture {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Attachments == nil {
		c.Attachments = []api.Attachment{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures[projectID] = append(s.captures[projectID], c)
	return c
}

func (s *store) deleteCapture(userID, captureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for projectID, list := range s.captures {
		for i, c := range list {
			if c.ID != captureID {
				continue
			}
			if s.owners[projectID] != userID {
				return errNotFound
			}
			s.captures[projectID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

// =============================================================================
// SEED
// =============================================================================

func (s *store) seed(now time.Time) {
	demo, err := s.addUser(DemoEmail, DemoPassword)
	if err != nil {
		return
	}
	p := s.addProject(demo.id, api.Project{
		Name:        "Postgres migration",
		Description: "Moving the ingest service from MySQL to Postgres",
		CreatedAt:   now.Add(-72 * time.Hour),
	})

	s.addCapture(p.ID, api.Capture{
		CaptureType: api.CaptureWebText,
		SourceURL:   "https://github.com/jackc/pgx",
		PageTitle:   "pgx - PostgreSQL Driver and Toolkit",
		TextContent: "pgx is a pure Go driver and toolkit for PostgreSQL. It supports the binary protocol, " +
			"connection pooling through pgxpool, COPY, LISTEN/NOTIFY and batch queries.",
		AIMarkdownSummary: "**pgx** is the recommended Go driver.\n\n- `pgxpool` for pooling\n- native COPY support",
		CreatedAt:         now.Add(-48 * time.Hour),
	})
	s.addCapture(p.ID, api.Capture{
		CaptureType: api.CaptureIDEBugFix,
		IDEFilePath: "internal/store/ingest.go",
		TextContent: "Fixed placeholder syntax after switching drivers.",
		IDECodeDiff: "-\trows, err := db.Query(\"SELECT id FROM events WHERE day = ?\", day)\n" +
			"+\trows, err := db.Query(ctx, \"SELECT id FROM events WHERE day = $1\", day)",
		IDEErrorLog: "ERROR: syntax error at or near \"?\" (SQLSTATE 42601)",
		CreatedAt:   now.Add(-24 * time.Hour),
	})
	s.addCapture(p.ID, api.Capture{
		CaptureType: api.CaptureUserNote,
		TextContent: "Remember to raise max_connections before the cutover and to run VACUUM ANALYZE afterwards.",
		CreatedAt:   now.Add(-2 * time.Hour),
		Attachments: []api.Attachment{{
			ID:       uuid.NewString(),
			S3URL:    "https://example.com/diagrams/cutover.png",
			FileType: "IMAGE",
			FileName: "cutover.png",
		}},
	})
}
