// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot questions against a project.
//
//	mindstack ask PROJECT "question"         Rendered markdown answer
//	mindstack ask PROJECT "question" --raw   Plain text, streamed as it arrives
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/chat"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/ui/components"
)

// HandleAsk asks one question and prints the answer.
func HandleAsk(e *env, args Args) error {
	query := strings.TrimSpace(args.Query)
	if args.Project == "" || query == "" {
		return NewUsageError("a project and a question are required", `mindstack ask PROJECT "question"`)
	}

	lookup, cancel := e.context()
	project, err := e.resolveProject(lookup, args.Project)
	cancel()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := e.newChat(project.ID)
	raw := args.Flags.BoolFlag("raw")
	stream := &streamPrinter{w: e.out}
	if raw {
		defer session.Subscribe(stream.update)()
	} else {
		e.say("%s", RenderConditional(DimStyle, components.ThinkingText))
	}

	err = session.Send(ctx, query)
	stream.finish()

	if errors.Is(err, context.Canceled) {
		e.say("%s", RenderConditional(WarningStyle, "Cancelled."))
		return nil
	}
	answer, ok := session.Snapshot().Last()
	if ok && answer.Failed() {
		return answerError(answer.Content)
	}
	if err != nil {
		return err
	}

	if !raw {
		fmt.Fprintln(e.out, e.renderAnswer(answer.Content))
	}
	if !e.quiet {
		printSources(e.out, answer.Sources)
	}
	return nil
}

// renderAnswer renders markdown for a terminal and leaves it alone otherwise.
func (e *env) renderAnswer(content string) string {
	if !ColorsEnabled() {
		return content
	}
	md := components.NewMarkdown(e.cfg.UI.Theme)
	width := min(GetTerminalWidth(), max(e.cfg.UI.WordWrap, MinTerminalWidth))
	return strings.TrimRight(md.Render(content, width), "\n")
}

func (e *env) newChat(projectID string) *chat.Session {
	return chat.New(projectID, e.api.Client(), e.auth, chat.Options{
		IdleTimeout: e.cfg.StreamIdleTimeout(),
		Logger:      e.logger.With("component", "chat"),
	})
}

func printSources(w io.Writer, sources []string) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderConditional(DimStyle, "Sources:"))
	for i, src := range sources {
		label := src
		if api.IsImageSource(src) {
			label = "[image] " + src
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, label)
	}
}

// answerError turns a failed turn into an error without its display prefix.
func answerError(content string) error {
	msg := strings.TrimPrefix(content, model.ErrorPrefix)
	msg = strings.TrimPrefix(msg, model.ConnectErrorPrefix)
	return fmt.Errorf("%w: %s", errAnswerFailed, msg)
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the new tail of the streaming answer on every
// snapshot. Failed turns are left to the caller.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	turnID  string
	printed int
	lastNL  bool
}

func (s *streamPrinter) update(c model.Conversation) {
	t, ok := c.Last()
	if !ok || t.Role != model.RoleAssistant || t.Failed() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID != s.turnID {
		s.turnID = t.ID
		s.printed = 0
	}
	if len(t.Content) <= s.printed {
		return
	}
	tail := t.Content[s.printed:]
	fmt.Fprint(s.w, tail)
	s.printed = len(t.Content)
	s.lastNL = strings.HasSuffix(tail, "\n")
}

// finish ends the streamed text with a newline.
func (s *streamPrinter) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.printed > 0 && !s.lastNL {
		fmt.Fprintln(s.w)
		s.lastNL = true
	}
}

// reset forgets the current turn so the next answer prints from the start.
func (s *streamPrinter) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnID = ""
	s.printed = 0
	s.lastNL = false
}
