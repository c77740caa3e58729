// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// REASSEMBLER CONSTANTS
// =============================================================================

const (
	// ReadChunkSize is the size of a single read from the response body.
	ReadChunkSize = 4 * 1024

	// MaxFrameSize caps the size of a single unterminated frame (1MB).
	MaxFrameSize = 1024 * 1024

	frameBoundary = "\n\n"
)

// ErrFrameTooLarge is returned when the buffer grows past MaxFrameSize
// without a frame boundary.
var ErrFrameTooLarge = errors.New("sse frame exceeds maximum size")

// =============================================================================
// REASSEMBLER
// =============================================================================

// Reassembler splits a byte stream into blank-line delimited blocks.
//
// It keeps a single text buffer across reads. After every read the buffer is
// split on the boundary marker; every piece except the last is a complete
// block and the last is kept for the next read. The zero value is not usable;
// use NewReassembler.
//
// A Reassembler is a single forward pass over one body and is not safe for
// concurrent use.
type Reassembler struct {
	src   io.Reader
	chunk []byte
	buf   string
	ready []string
	err   error
}

// NewReassembler wraps r. The bytes are run through a streaming UTF-8
// decoder so a multi-byte character split across two reads is kept whole.
func NewReassembler(r io.Reader) *Reassembler {
	return &Reassembler{
		src:   transform.NewReader(r, unicode.UTF8.NewDecoder()),
		chunk: make([]byte, ReadChunkSize),
	}
}

// Next returns the next complete block, without its terminating blank line.
//
// It returns io.EOF once the body is exhausted; content after the last
// boundary is discarded. The context is checked before every read, so a
// cancelled context stops the loop at the next chunk boundary. Closing the
// underlying body unblocks a read in progress.
func (r *Reassembler) Next(ctx context.Context) (string, error) {
	for {
		if len(r.ready) > 0 {
			block := r.ready[0]
			r.ready = r.ready[1:]
			return block, nil
		}
		if r.err != nil {
			return "", r.err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.feed(string(r.chunk[:n]))
			if len(r.buf) > MaxFrameSize {
				r.buf = ""
				r.err = fmt.Errorf("%w: more than %d bytes without a boundary", ErrFrameTooLarge, MaxFrameSize)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.buf = ""
				r.err = io.EOF
			} else {
				r.err = fmt.Errorf("failed to read stream: %w", err)
			}
		}
	}
}

// feed appends decoded text and moves complete blocks to the ready queue.
func (r *Reassembler) feed(text string) {
	r.buf += text
	if strings.Contains(r.buf, "\r\n") {
		r.buf = strings.ReplaceAll(r.buf, "\r\n", "\n")
	}

	pieces := strings.Split(r.buf, frameBoundary)
	r.buf = pieces[len(pieces)-1]
	r.ready = append(r.ready, pieces[:len(pieces)-1]...)
}
