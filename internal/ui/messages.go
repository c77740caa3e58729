// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
)

// =============================================================================
// AUTH MESSAGES
// =============================================================================

// signedOutMsg means the session ended and the login screen should show.
type signedOutMsg struct {
	reason string
}

// authDoneMsg is the result of a sign-in or sign-up attempt.
type authDoneMsg struct {
	info    *auth.Info
	pending bool
	err     error
}

// logoutMsg asks the root model to sign out.
type logoutMsg struct{}

// =============================================================================
// PROJECT MESSAGES
// =============================================================================

type projectsLoadedMsg struct {
	projects []api.Project
	meta     api.Meta
	err      error
}

type projectCreatedMsg struct {
	project *api.Project
	err     error
}

// openProjectMsg switches to a project's view.
type openProjectMsg struct {
	project api.Project
}

// backMsg returns to the project list.
type backMsg struct{}

// =============================================================================
// CAPTURE MESSAGES
// =============================================================================

type capturesLoadedMsg struct {
	projectID string
	captures  []api.Capture
	meta      api.Meta
	err       error
}

type captureDeletedMsg struct {
	id  string
	err error
}

// =============================================================================
// CHAT MESSAGES
// =============================================================================

// conversationChangedMsg means the chat session has a new snapshot.
type conversationChangedMsg struct {
	projectID string
}

// chatDoneMsg is sent when a Send call returns.
type chatDoneMsg struct {
	projectID string
	err       error
}
