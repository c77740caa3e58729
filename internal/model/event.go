// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// EventKind classifies a stream frame.
type EventKind string

const (
	EventSources EventKind = "sources"
	EventDelta   EventKind = "delta"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"

	// EventUnknown is any frame type this client does not understand.
	// Reducing it is a no-op so newer servers can add frame types.
	EventUnknown EventKind = "unknown"
)

// ParseEventKind maps a wire name to an EventKind.
func ParseEventKind(name string) EventKind {
	switch EventKind(name) {
	case EventSources, EventDelta, EventDone, EventError:
		return EventKind(name)
	default:
		return EventUnknown
	}
}

// Event is one classified frame of the chat stream.
type Event struct {
	Kind EventKind

	// Sources is set for EventSources.
	Sources []string

	// Text is the fragment carried by EventDelta.
	Text string

	// Message is the human-readable message of EventError.
	Message string
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
