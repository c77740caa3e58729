// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/mindstack-tui/internal/model"
)

// DefaultEventName is used for frames without an event line.
const DefaultEventName = "message"

// ErrMalformedFrame wraps every Classify failure.
var ErrMalformedFrame = errors.New("malformed sse frame")

// Frame is one parsed block.
type Frame struct {
	Name string
	Data string
}

// payload is the JSON carried in a frame's data line.
type payload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseFrame splits a block into lines. "event:" sets the name and "data:"
// sets the payload, both trimmed; when several data lines appear the last one
// wins. Other lines are ignored. ok is false when the block has no data.
func ParseFrame(block string) (Frame, bool) {
	f := Frame{Name: DefaultEventName}
	hasData := false

	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			f.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			f.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			hasData = true
		}
	}

	if !hasData || f.Data == "" {
		return Frame{}, false
	}
	return f, true
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify decodes a frame's payload into an event.
//
// The payload's type field decides the kind; the frame name is used only
// when the payload has no type. Unrecognised kinds yield EventUnknown, not
// an error. An error is returned when the payload is not a JSON object or
// the data does not have the shape its kind requires.
func Classify(f Frame) (model.Event, error) {
	if !strings.HasPrefix(strings.TrimSpace(f.Data), "{") {
		return model.Event{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedFrame)
	}
	var p payload
	if err := json.Unmarshal([]byte(f.Data), &p); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	name := p.Type
	if name == "" {
		name = f.Name
	}
	ev := model.Event{Kind: model.ParseEventKind(name)}

	switch ev.Kind {
	case model.EventSources:
		if !isNull(p.Data) {
			if err := json.Unmarshal(p.Data, &ev.Sources); err != nil {
				return model.Event{}, fmt.Errorf("%w: sources: %v", ErrMalformedFrame, err)
			}
		}
		if ev.Sources == nil {
			ev.Sources = []string{}
		}
	case model.EventDelta:
		if !isNull(p.Data) {
			if err := json.Unmarshal(p.Data, &ev.Text); err != nil {
				return model.Event{}, fmt.Errorf("%w: delta: %v", ErrMalformedFrame, err)
			}
		}
	case model.EventError:
		ev.Message = errorMessage(p.Data)
	}
	return ev, nil
}

// errorMessage renders an error payload. Strings are used as is; any other
// JSON value is shown as its JSON text.
func errorMessage(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
