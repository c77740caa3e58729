// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "MindStack"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a turn.
//
// Assistant turns move Pending -> Done | Error | Interrupted exactly once.
// User turns are created Done.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDone        Status = "done"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is a single message in the transcript.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	Pending   bool      `json:"pending"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newTurn(role Role, content string, pending bool) Turn {
	status := StatusDone
	if pending {
		status = StatusPending
	}
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Sources:   []string{},
		Pending:   pending,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// clone returns a copy that shares no mutable state with t.
func (t Turn) clone() Turn {
	c := t
	c.Sources = append([]string{}, t.Sources...)
	return c
}

// IsThinking reports whether the turn is pending and nothing has arrived yet.
func (t Turn) IsThinking() bool {
	return t.Pending && t.Content == "" && len(t.Sources) == 0
}

// Failed reports whether the turn ended with an error.
func (t Turn) Failed() bool {
	return t.Status == StatusError
}

// Preview returns the first line of the content, for list views.
func (t Turn) Preview(maxRunes int) string {
	line := strings.TrimSpace(strings.SplitN(t.Content, "\n", 2)[0])
	runes := []rune(line)
	if maxRunes > 3 && len(runes) > maxRunes {
		return string(runes[:maxRunes-3]) + "..."
	}
	return line
}
