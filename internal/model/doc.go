// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation transcript and the reducer that
// folds streamed chat events into it.
//
// Values in this package are immutable from the caller's point of view:
// every transition returns a new Conversation and leaves its input alone, so
// a view can hold on to a snapshot while the stream keeps producing updates.
//
// # Key Types
//
//   - Conversation: ordered turns for one project view
//   - Turn: one user or assistant message, addressed by ID
//   - Event: a classified stream frame (sources, delta, done, error)
//
// # Transitions
//
//   - Begin: append a user turn and a pending assistant turn
//   - Reduce: apply one Event to the pending assistant turn
//   - FailTransport: replace the pending turn with a connection error
//   - Interrupt: finalize the pending turn keeping what arrived so far
//
// # Usage
//
//	conv := model.NewConversation(projectID)
//	conv, turnID, err := model.Begin(conv, "what did I save about pgx?")
//	conv = model.Reduce(conv, turnID, model.Event{Kind: model.EventDelta, Text: "Hel"})
//	conv = model.Reduce(conv, turnID, model.Event{Kind: model.EventDone})
package model
