// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/mindstack-tui/internal/model"
)

// WriteEvent writes one frame in the chat stream format:
//
//	event: <kind>
//	data: {"type":"<kind>","data":<data>}
//
// followed by a blank line. The writer is flushed when it supports it.
func WriteEvent(w io.Writer, kind model.EventKind, data any) error {
	body, err := json.Marshal(struct {
		Type model.EventKind `json:"type"`
		Data any             `json:"data,omitempty"`
	}{Type: kind, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, body); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
