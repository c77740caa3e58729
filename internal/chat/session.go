// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/sse"
)

var (
	// ErrBusy is returned while a response is still streaming.
	ErrBusy = errors.New("a response is still streaming")

	// ErrEmptyInput is returned for blank input.
	ErrEmptyInput = model.ErrEmptyInput

	// ErrSignedOut is returned when there is no session or the backend
	// rejected it. The caller should show the login screen.
	ErrSignedOut = errors.New("signed out: please sign in again")
)

// DefaultIdleTimeout is how long a stream may go without data.
const DefaultIdleTimeout = 90 * time.Second

// Streamer opens the chat stream. *api.Client implements it.
type Streamer interface {
	OpenChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
}

// Options configures a Session.
type Options struct {
	// IdleTimeout finalizes a stream that stays silent this long.
	// Zero disables it.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session holds the transcript of one project view and runs chat requests
// against it. It is safe for concurrent use; only one request runs at a time.
type Session struct {
	streamer Streamer
	tokens   auth.TokenSource
	idle     time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	conv    model.Conversation
	busy    bool
	subs    map[int]func(model.Conversation)
	nextSub int
}

// New creates a session for a project.
func New(projectID string, streamer Streamer, tokens auth.TokenSource, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Session{
		streamer: streamer,
		tokens:   tokens,
		idle:     opts.IdleTimeout,
		logger:   opts.Logger,
		conv:     model.NewConversation(projectID),
		subs:     make(map[int]func(model.Conversation)),
	}
}

// ProjectID returns the project this session talks about.
func (s *Session) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ProjectID
}

// Snapshot returns a copy of the transcript.
func (s *Session) Snapshot() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone()
}

// Busy reports whether a response is streaming.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Clear empties the transcript.
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.conv = model.NewConversation(s.conv.ProjectID)
	snap, subs := s.conv.Clone(), s.observers()
	s.mu.Unlock()

	notify(subs, snap)
	return nil
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change and must not block.
func (s *Session) Subscribe(fn func(model.Conversation)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send asks a question and streams the answer into the transcript.
//
// Failures that end up in the transcript (error frames, a stream that stops
// early, the idle timeout) return nil. A connection failure returns the
// error after recording it in the turn. A missing or rejected session
// returns ErrSignedOut.
func (s *Session) Send(ctx context.Context, text string) error {
	turnID, req, err := s.begin(text)
	if err != nil {
		return err
	}
	defer s.finish(turnID)

	log := s.logger.With("project", req.ProjectID, "turn", turnID)
	log.Debug("chat request", "history", len(req.Messages))

	if _, err := s.tokens.Token(ctx); err != nil {
		switch {
		case errors.Is(err, auth.ErrNoSession):
			return s.endSession(ctx, log, turnID, err)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.failTransport(turnID, err)
			return err
		}
	}

	body, err := s.streamer.OpenChat(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrUnauthorized), errors.Is(err, auth.ErrNoSession):
			log.Info("chat request not authorized, signing out", "error", err)
			return s.endSession(ctx, log, turnID, err)
		case ctx.Err() != nil:
			s.apply(func(c model.Conversation) model.Conversation {
				return model.Interrupt(c, turnID, "")
			})
			return ctx.Err()
		default:
			log.Warn("chat request failed", "error", err)
			s.failTransport(turnID, err)
			return err
		}
	}

	return s.consume(ctx, log, turnID, body)
}

// consume reads the stream until a terminal event, the end of the body,
// the idle timeout, or cancellation.
func (s *Session) consume(ctx context.Context, log *slog.Logger, turnID string, body io.ReadCloser) error {
	defer body.Close()

	// Closing the body unblocks a read in progress.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	var src io.Reader = body
	var idle *idleReader
	if s.idle > 0 {
		idle = watchIdle(body, s.idle)
		defer idle.stop()
		src = idle
	}

	dec := sse.NewDecoder(src, log)
	for {
		ev, err := dec.Next(ctx)
		if err != nil {
			switch {
			case idle != nil && idle.timedOut():
				log.Warn("chat stream timed out", "idle", s.idle)
				s.apply(func(c model.Conversation) model.Conversation {
					return model.Interrupt(c, turnID, model.TimeoutNotice)
				})
				return nil
			case ctx.Err() != nil:
				s.apply(func(c model.Conversation) model.Conversation {
					return model.Interrupt(c, turnID, "")
				})
				return ctx.Err()
			case errors.Is(err, io.EOF):
				log.Debug("chat stream ended without done", "dropped", dec.Dropped())
				s.apply(func(c model.Conversation) model.Conversation {
					return model.Interrupt(c, turnID, "")
				})
				return nil
			default:
				log.Warn("chat stream failed", "error", err)
				s.failTransport(turnID, err)
				return err
			}
		}

		s.apply(func(c model.Conversation) model.Conversation {
			return model.Reduce(c, turnID, ev)
		})
		if ev.Terminal() {
			log.Debug("chat stream finished", "kind", ev.Kind, "dropped", dec.Dropped())
			return nil
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// begin appends the turns and marks the session busy in one step.
func (s *Session) begin(text string) (string, api.ChatRequest, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", api.ChatRequest{}, ErrBusy
	}
	next, turnID, err := model.Begin(s.conv, text)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, model.ErrTurnPending) {
			return "", api.ChatRequest{}, ErrBusy
		}
		return "", api.ChatRequest{}, err
	}
	s.conv = next
	s.busy = true
	req := api.ChatRequest{
		ProjectID:    next.ProjectID,
		CurrentQuery: lastUserText(next),
		Messages:     next.History(),
	}
	snap, subs := next.Clone(), s.observers()
	s.mu.Unlock()

	notify(subs, snap)
	return turnID, req, nil
}

// finish clears the busy flag, finalizing the turn if nothing else did.
func (s *Session) finish(turnID string) {
	s.mu.Lock()
	s.conv = model.Interrupt(s.conv, turnID, "")
	s.busy = false
	snap, subs := s.conv.Clone(), s.observers()
	s.mu.Unlock()

	notify(subs, snap)
}

// apply runs one transition and notifies observers.
func (s *Session) apply(fn func(model.Conversation) model.Conversation) {
	s.mu.Lock()
	s.conv = fn(s.conv)
	snap, subs := s.conv.Clone(), s.observers()
	s.mu.Unlock()

	notify(subs, snap)
}

func (s *Session) failTransport(turnID string, err error) {
	s.apply(func(c model.Conversation) model.Conversation {
		return model.FailTransport(c, turnID, err)
	})
}

// endSession signs out, finalizes the placeholder without content and
// returns ErrSignedOut wrapping cause.
func (s *Session) endSession(ctx context.Context, log *slog.Logger, turnID string, cause error) error {
	if err := s.tokens.SignOut(context.WithoutCancel(ctx)); err != nil {
		log.Warn("sign out failed", "error", err)
	}
	s.apply(func(c model.Conversation) model.Conversation {
		return model.Interrupt(c, turnID, "")
	})
	return fmt.Errorf("%w: %w", ErrSignedOut, cause)
}

// observers returns the current subscribers. Callers hold s.mu.
func (s *Session) observers() []func(model.Conversation) {
	out := make([]func(model.Conversation), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(model.Conversation), c model.Conversation) {
	for _, fn := range subs {
		fn(c)
	}
}

func lastUserText(c model.Conversation) string {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == model.RoleUser {
			return c.Turns[i].Content
		}
	}
	return ""
}

// String describes the session for logs.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("chat(%s, %d turns, busy=%t)", s.conv.ProjectID, s.conv.Len(), s.busy)
}
