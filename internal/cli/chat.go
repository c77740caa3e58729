// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for mindstack.
//
// Command: chat PROJECT
//
// Interactive Commands (during chat):
//
//	/help, /h           Show available commands
//	/clear, /c          Clear the conversation
//	/sources, /s        Show the sources of the last answer
//	/quit, /q           Exit chat
//	Ctrl+C              Cancel the current answer
//	Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/chat"
	"github.com/jeranaias/mindstack-tui/internal/config"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads the saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if _, err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// chatREPL holds one interactive chat.
type chatREPL struct {
	e       *env
	project api.Project
	session *chat.Session
	stream  *streamPrinter

	mu     sync.Mutex
	cancel context.CancelFunc
}

// HandleChat runs the interactive chat for a project.
func HandleChat(e *env, args Args) error {
	if args.Project == "" {
		return NewUsageError("a project is required", "mindstack chat PROJECT")
	}
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	lookup, cancel := e.context()
	project, err := e.resolveProject(lookup, args.Project)
	cancel()
	if err != nil {
		return err
	}

	r := &chatREPL{
		e:       e,
		project: project,
		session: e.newChat(project.ID),
		stream:  &streamPrinter{w: e.out},
	}
	defer r.session.Subscribe(r.stream.update)()

	input := NewChatCLI()
	defer input.Close()

	// Ctrl+C while an answer streams cancels it; at the prompt liner
	// reports it as ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			r.interrupt()
		}
	}()

	if !e.quiet {
		r.printWelcome()
	}

	for {
		line, err := input.ReadInput(PromptStyle.Render(project.Name + "> "))
		if err != nil {
			fmt.Fprintln(e.out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if !r.handleSlashCommand(line) {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		if err := r.ask(line); err != nil {
			if errors.Is(err, chat.ErrSignedOut) || errors.Is(err, auth.ErrNoSession) {
				return err
			}
			DisplayError(e.errOut, err)
		}
	}
}

// ask sends one message and streams the answer.
func (r *chatREPL) ask(text string) error {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	r.stream.reset()
	err := r.session.Send(ctx, text)
	r.stream.finish()

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(r.e.errOut, RenderConditional(WarningStyle, "[Cancelled]"))
		return nil
	}
	if answer, ok := r.session.Snapshot().Last(); ok && answer.Failed() {
		return answerError(answer.Content)
	}
	return err
}

func (r *chatREPL) interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// handleSlashCommand runs a /command and reports whether to keep going.
func (r *chatREPL) handleSlashCommand(line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/q", "/exit":
		return false
	case "/clear", "/c":
		if err := r.session.Clear(); err != nil {
			DisplayError(r.e.errOut, err)
		} else {
			fmt.Fprintln(r.e.out, RenderConditional(DimStyle, "Conversation cleared."))
		}
	case "/sources", "/s":
		answer, ok := r.session.Snapshot().Last()
		if !ok || len(answer.Sources) == 0 {
			fmt.Fprintln(r.e.out, RenderConditional(DimStyle, "No sources for the last answer."))
			break
		}
		printSources(r.e.out, answer.Sources)
	case "/help", "/h", "/?":
		printChatHelp(r.e)
	default:
		fmt.Fprintf(r.e.errOut, "Unknown command %s. Type /help for commands.\n", fields[0])
	}
	return true
}

func (r *chatREPL) printWelcome() {
	fmt.Fprintln(r.e.out, TitleStyle.Render("MindStack chat · "+r.project.Name))
	if r.e.api.Offline() {
		fmt.Fprintln(r.e.out, RenderConditional(WarningStyle, "Offline mode: answers need a connection."))
	}
	fmt.Fprintln(r.e.out, RenderConditional(DimStyle, "Ask about what you saved. /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(r.e.out)
}

func printChatHelp(e *env) {
	fmt.Fprintln(e.out, RenderLabel("/clear", "Clear the conversation"))
	fmt.Fprintln(e.out, RenderLabel("/sources", "Show the sources of the last answer"))
	fmt.Fprintln(e.out, RenderLabel("/quit", "Exit chat"))
	fmt.Fprintln(e.out, RenderLabel("Ctrl+C", "Cancel the current answer"))
}
