// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/chat"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

func (d Deps) timeout() time.Duration {
	if d.Config != nil {
		return d.Config.APITimeout()
	}
	return api.DefaultTimeout
}

// SignInCmd signs in, or signs up when signUp is set.
func SignInCmd(d Deps, email, password string, signUp bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()

		if signUp {
			pending, err := d.Auth.SignUp(ctx, email, password)
			if err != nil || pending {
				return authDoneMsg{pending: pending, err: err}
			}
			info := d.Auth.Session()
			return authDoneMsg{info: &info}
		}
		info, err := d.Auth.SignIn(ctx, email, password)
		return authDoneMsg{info: info, err: err}
	}
}

// LoadProjectsCmd fetches the project list.
func LoadProjectsCmd(d Deps) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		projects, meta, err := d.API.ListProjects(ctx)
		return projectsLoadedMsg{projects: projects, meta: meta, err: err}
	}
}

// CreateProjectCmd creates a project.
func CreateProjectCmd(d Deps, name, description string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		p, err := d.API.CreateProject(ctx, name, description)
		return projectCreatedMsg{project: p, err: err}
	}
}

// LoadCapturesCmd fetches a project's captures.
func LoadCapturesCmd(d Deps, projectID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		captures, meta, err := d.API.ListCaptures(ctx, projectID)
		return capturesLoadedMsg{projectID: projectID, captures: captures, meta: meta, err: err}
	}
}

// DeleteCaptureCmd deletes a capture already removed from the view.
func DeleteCaptureCmd(d Deps, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		return captureDeletedMsg{id: id, err: d.API.DeleteCapture(ctx, id)}
	}
}

// SendChatCmd runs one chat exchange to completion.
func SendChatCmd(ctx context.Context, s *chat.Session, text string) tea.Cmd {
	return func() tea.Msg {
		return chatDoneMsg{projectID: s.ProjectID(), err: s.Send(ctx, text)}
	}
}

// waitFor blocks until ch signals and then returns msg. A closed channel
// yields nil, which ends the wait loop.
func waitFor(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}

// signal does a non-blocking send on a buffered channel of size one, so
// bursts of notifications collapse into one.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// isSignedOut reports whether err means the user has to sign in again.
func isSignedOut(err error) bool {
	return errors.Is(err, api.ErrUnauthorized) ||
		errors.Is(err, auth.ErrNoSession) ||
		errors.Is(err, chat.ErrSignedOut)
}
