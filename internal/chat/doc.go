// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs the streamed question/answer exchange for one project
// view.
//
// A Session owns a model.Conversation. Send appends the user turn and a
// pending assistant turn, opens the chat stream, and folds every classified
// frame into the transcript with model.Reduce. Observers registered with
// Subscribe receive a snapshot after each change.
//
// # Failure handling
//
//   - missing session or HTTP 401: sign out, finalize the placeholder
//     unchanged, ErrSignedOut
//   - transport failure: the placeholder shows the connection error
//   - stream ends without done: partial content is kept
//   - no data for the idle timeout: partial content plus a timeout notice
//   - caller cancellation: partial content is kept, ctx.Err() is returned
//
// # Usage
//
//	s := chat.New(projectID, apiClient, authClient, chat.Options{IdleTimeout: 90 * time.Second})
//	unsubscribe := s.Subscribe(func(c model.Conversation) { render(c) })
//	defer unsubscribe()
//	err := s.Send(ctx, "what did I save about pgx?")
package chat
