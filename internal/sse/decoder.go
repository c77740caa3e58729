// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"io"
	"log/slog"

	"github.com/jeranaias/mindstack-tui/internal/model"
)

// Decoder yields classified events from a chat response body.
type Decoder struct {
	frames  *Reassembler
	logger  *slog.Logger
	dropped int
}

// NewDecoder creates a decoder over r. A nil logger discards.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decoder{frames: NewReassembler(r), logger: logger}
}

// Next returns the next event. Blocks without data and payloads that fail
// to classify are skipped. It returns io.EOF at the end of the stream.
func (d *Decoder) Next(ctx context.Context) (model.Event, error) {
	for {
		block, err := d.frames.Next(ctx)
		if err != nil {
			return model.Event{}, err
		}

		frame, ok := ParseFrame(block)
		if !ok {
			continue
		}

		ev, err := Classify(frame)
		if err != nil {
			d.dropped++
			d.logger.Debug("dropping sse frame", "event", frame.Name, "error", err)
			continue
		}
		return ev, nil
	}
}

// Dropped returns how many frames failed to classify so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}
