// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
)

// Messages rendered into assistant turns when a turn cannot complete normally.
const (
	ErrorPrefix         = "⚠️ Error: "
	ConnectErrorPrefix  = "⚠️ Failed to connect: "
	UnknownErrorMessage = "Unknown error"
	TimeoutNotice       = "⚠️ Stream timed out"
)

var (
	// ErrTurnPending is returned by Begin while an assistant turn is still streaming.
	ErrTurnPending = errors.New("a response is still streaming")

	// ErrEmptyInput is returned by Begin for blank input.
	ErrEmptyInput = errors.New("message is empty")
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the transcript of one project view. It is never persisted.
type Conversation struct {
	ProjectID string `json:"project_id"`
	Turns     []Turn `json:"turns"`
}

// HistoryEntry is the wire shape of a prior turn sent with a chat request.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewConversation creates an empty transcript for a project.
func NewConversation(projectID string) Conversation {
	return Conversation{ProjectID: projectID, Turns: []Turn{}}
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := Conversation{ProjectID: c.ProjectID, Turns: make([]Turn, len(c.Turns))}
	for i, t := range c.Turns {
		out.Turns[i] = t.clone()
	}
	return out
}

// Len returns the number of turns.
func (c Conversation) Len() int {
	return len(c.Turns)
}

// IsEmpty returns true if there are no turns.
func (c Conversation) IsEmpty() bool {
	return len(c.Turns) == 0
}

// Pending returns the pending assistant turn, if any.
func (c Conversation) Pending() (Turn, bool) {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Pending {
			return c.Turns[i].clone(), true
		}
	}
	return Turn{}, false
}

// Turn looks a turn up by ID.
func (c Conversation) Turn(id string) (Turn, bool) {
	for _, t := range c.Turns {
		if t.ID == id {
			return t.clone(), true
		}
	}
	return Turn{}, false
}

// Last returns the most recent turn.
func (c Conversation) Last() (Turn, bool) {
	if len(c.Turns) == 0 {
		return Turn{}, false
	}
	return c.Turns[len(c.Turns)-1].clone(), true
}

// History returns the prior turns to send along with a new query.
// The pending turn and assistant turns that produced no text are left out.
func (c Conversation) History() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(c.Turns))
	for _, t := range c.Turns {
		if t.Pending {
			continue
		}
		if t.Role == RoleAssistant && t.Content == "" {
			continue
		}
		out = append(out, HistoryEntry{Role: t.Role, Content: t.Content})
	}
	return out
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Begin appends a user turn and a pending assistant turn in one step and
// returns the new conversation and the assistant turn's ID.
//
// The input conversation is returned unchanged with ErrTurnPending while
// another turn is pending, and with ErrEmptyInput for blank text.
func Begin(c Conversation, text string) (Conversation, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return c, "", ErrEmptyInput
	}
	if _, busy := c.Pending(); busy {
		return c, "", ErrTurnPending
	}

	next := c.Clone()
	user := newTurn(RoleUser, text, false)
	assistant := newTurn(RoleAssistant, "", true)
	next.Turns = append(next.Turns, user, assistant)
	return next, assistant.ID, nil
}

// Reduce applies one stream event to the pending turn identified by turnID.
//
//	sources -> replace the turn's sources
//	delta   -> append text
//	done    -> finalize
//	error   -> finalize with the error message as content
//	unknown -> no-op
//
// Events for unknown or already finalized turns are ignored.
func Reduce(c Conversation, turnID string, ev Event) Conversation {
	return update(c, turnID, func(t *Turn) bool {
		switch ev.Kind {
		case EventSources:
			t.Sources = append([]string{}, ev.Sources...)
		case EventDelta:
			t.Content += ev.Text
		case EventDone:
			t.Pending = false
			t.Status = StatusDone
		case EventError:
			msg := ev.Message
			if msg == "" {
				msg = UnknownErrorMessage
			}
			t.Content = ErrorPrefix + msg
			t.Pending = false
			t.Status = StatusError
		default:
			return false
		}
		return true
	})
}

// FailTransport replaces the pending turn's content with a connection error
// and finalizes it. Sources received so far are dropped.
func FailTransport(c Conversation, turnID string, err error) Conversation {
	return update(c, turnID, func(t *Turn) bool {
		msg := UnknownErrorMessage
		if err != nil {
			msg = err.Error()
		}
		t.Content = ConnectErrorPrefix + msg
		t.Sources = []string{}
		t.Pending = false
		t.Status = StatusError
		return true
	})
}

// Interrupt finalizes the pending turn keeping whatever arrived. A non-empty
// notice is appended on its own paragraph.
func Interrupt(c Conversation, turnID string, notice string) Conversation {
	return update(c, turnID, func(t *Turn) bool {
		if notice != "" {
			if t.Content != "" {
				t.Content += "\n\n"
			}
			t.Content += notice
		}
		t.Pending = false
		t.Status = StatusInterrupted
		return true
	})
}

// update copies c and applies fn to the pending turn with the given ID.
// When the turn is missing, finalized, or fn reports no change, c is returned as is.
func update(c Conversation, turnID string, fn func(t *Turn) bool) Conversation {
	for i := range c.Turns {
		if c.Turns[i].ID != turnID {
			continue
		}
		if !c.Turns[i].Pending {
			return c
		}
		t := c.Turns[i].clone()
		if !fn(&t) {
			return c
		}
		next := c.Clone()
		next.Turns[i] = t
		return next
	}
	return c
}
