// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the event stream returned by the chat endpoint.
//
// Decoding happens in three stages:
//
//   - Reassembler: turns the raw response body into complete frame blocks.
//     A block is only complete once it is terminated by a blank line; a
//     trailing block without one is discarded at end of stream.
//   - ParseFrame: splits a block into its event name and data payload.
//   - Classify: decodes the JSON payload into a model.Event.
//
// Decoder chains the three and skips frames that carry no data or fail to
// parse, so a single bad frame never stops the stream.
//
// WriteEvent is the encoding side, used by the development server.
package sse
