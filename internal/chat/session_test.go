// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/model"
)

// =============================================================================
// FIXTURES
// =============================================================================

type stubTokens struct {
	mu       sync.Mutex
	err      error
	signOuts int

	// expireAfter makes every call after the first n fail with
	// auth.ErrNoSession. Zero disables it.
	expireAfter int
	calls       int
}

func (s *stubTokens) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.expireAfter > 0 && s.calls > s.expireAfter {
		return "", auth.ErrNoSession
	}
	return "tok", nil
}

func (s *stubTokens) SignOut(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOuts++
	return nil
}

func (s *stubTokens) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signOuts
}

// stubStreamer returns a fixed body or error and records requests.
type stubStreamer struct {
	mu   sync.Mutex
	body func() io.ReadCloser
	err  error
	reqs []api.ChatRequest
}

func (s *stubStreamer) OpenChat(_ context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.body(), nil
}

func (s *stubStreamer) requests() []api.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ChatRequest(nil), s.reqs...)
}

func bodyOf(frames ...string) func() io.ReadCloser {
	return func() io.ReadCloser {
		return io.NopCloser(strings.NewReader(strings.Join(frames, "")))
	}
}

func frame(kind, data string) string {
	return "event: " + kind + "\ndata: " + data + "\n\n"
}

func lastTurn(t *testing.T, s *Session) model.Turn {
	t.Helper()
	turn, ok := s.Snapshot().Last()
	require.True(t, ok)
	return turn
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_ConcreteScenario(t *testing.T) {
	streamer := &stubStreamer{body: bodyOf(
		frame("sources", `{"type":"sources","data":["https://a.com"]}`),
		frame("delta", `{"type":"delta","data":"Hel"}`),
		frame("delta", `{"type":"delta","data":"lo"}`),
		frame("done", `{"type":"done"}`),
	)}
	s := New("p1", streamer, &stubTokens{}, Options{IdleTimeout: time.Second})

	require.NoError(t, s.Send(context.Background(), "  hi  "))

	conv := s.Snapshot()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, model.RoleUser, conv.Turns[0].Role)
	assert.Equal(t, "hi", conv.Turns[0].Content)

	reply := conv.Turns[1]
	assert.Equal(t, "Hello", reply.Content)
	assert.Equal(t, []string{"https://a.com"}, reply.Sources)
	assert.False(t, reply.Pending)
	assert.Equal(t, model.StatusDone, reply.Status)
	assert.False(t, s.Busy())

	reqs := streamer.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "p1", reqs[0].ProjectID)
	assert.Equal(t, "hi", reqs[0].CurrentQuery)
}

func TestSend_MalformedFramesAreSkipped(t *testing.T) {
	streamer := &stubStreamer{body: bodyOf(
		frame("delta", `{"type":"delta","data":"A"}`),
		frame("delta", `{not json`),
		"event: delta\n\n",
		frame("delta", `{"type":"delta","data":"B"}`),
		frame("done", `{"type":"done"}`),
	)}
	s := New("p1", streamer, &stubTokens{}, Options{})

	require.NoError(t, s.Send(context.Background(), "q"))
	assert.Equal(t, "AB", lastTurn(t, s).Content)
}

func TestSend_ErrorFrame(t *testing.T) {
	streamer := &stubStreamer{body: bodyOf(
		frame("delta", `{"type":"delta","data":"partial"}`),
		frame("error", `{"type":"error","data":"quota exceeded"}`),
		frame("delta", `{"type":"delta","data":"ignored"}`),
	)}
	s := New("p1", streamer, &stubTokens{}, Options{})

	require.NoError(t, s.Send(context.Background(), "q"))
	turn := lastTurn(t, s)
	assert.Equal(t, model.ErrorPrefix+"quota exceeded", turn.Content)
	assert.Equal(t, model.StatusError, turn.Status)
}

func TestSend_EndWithoutDone(t *testing.T) {
	streamer := &stubStreamer{body: bodyOf(
		frame("delta", `{"type":"delta","data":"half an answer"}`),
		"event: delta\ndata: {\"type\":\"delta\",\"data\":\" lost\"}",
	)}
	s := New("p1", streamer, &stubTokens{}, Options{})

	require.NoError(t, s.Send(context.Background(), "q"))
	turn := lastTurn(t, s)
	assert.Equal(t, "half an answer", turn.Content)
	assert.Equal(t, model.StatusInterrupted, turn.Status)
	assert.False(t, turn.Pending)
}

func TestSend_EmptyInput(t *testing.T) {
	s := New("p1", &stubStreamer{}, &stubTokens{}, Options{})

	assert.ErrorIs(t, s.Send(context.Background(), "  \n "), ErrEmptyInput)
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestSend_Busy(t *testing.T) {
	pr, pw := io.Pipe()
	streamer := &stubStreamer{body: func() io.ReadCloser { return pr }}
	s := New("p1", streamer, &stubTokens{}, Options{})

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "first") }()

	require.Eventually(t, s.Busy, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Send(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, s.Clear(), ErrBusy)
	assert.Equal(t, 2, s.Snapshot().Len())

	_, err := io.WriteString(pw, frame("done", `{"type":"done"}`))
	require.NoError(t, err)
	require.NoError(t, <-done)
	pw.Close()

	assert.False(t, s.Busy())
	require.NoError(t, s.Clear())
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestSend_Unauthorized(t *testing.T) {
	tokens := &stubTokens{}
	s := New("p1", &stubStreamer{err: api.ErrUnauthorized}, tokens, Options{})

	err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Equal(t, 1, tokens.count())

	conv := s.Snapshot()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, "hello", conv.Turns[0].Content)
	assert.Equal(t, "", conv.Turns[1].Content)
	assert.False(t, conv.Turns[1].Pending)
	assert.Equal(t, model.StatusInterrupted, conv.Turns[1].Status)
	assert.False(t, s.Busy())
}

func TestSend_NoSession(t *testing.T) {
	tokens := &stubTokens{err: auth.ErrNoSession}
	streamer := &stubStreamer{}
	s := New("p1", streamer, tokens, Options{})

	err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.ErrorIs(t, err, auth.ErrNoSession)
	assert.Equal(t, 1, tokens.count())
	assert.Empty(t, streamer.requests())

	turn := lastTurn(t, s)
	assert.False(t, turn.Pending)
	assert.Equal(t, model.StatusInterrupted, turn.Status)
	assert.Equal(t, "", turn.Content)
}

func TestSend_SessionLostBeforeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	tokens := &stubTokens{expireAfter: 1}
	client, err := api.New(api.Options{BaseURL: srv.URL, Tokens: tokens, RatePerSec: 1000})
	require.NoError(t, err)
	s := New("p1", client, tokens, Options{})

	err = s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.ErrorIs(t, err, auth.ErrNoSession)
	assert.Equal(t, 1, tokens.count())

	turn := lastTurn(t, s)
	assert.Equal(t, model.StatusInterrupted, turn.Status)
	assert.Equal(t, "", turn.Content)
	assert.NotContains(t, turn.Content, model.ConnectErrorPrefix)
	assert.False(t, s.Busy())
}

func TestSend_TransportFailure(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	s := New("p1", &stubStreamer{err: cause}, &stubTokens{}, Options{})

	err := s.Send(context.Background(), "q")
	assert.ErrorIs(t, err, cause)

	turn := lastTurn(t, s)
	assert.Equal(t, model.ConnectErrorPrefix+"dial tcp: connection refused", turn.Content)
	assert.Equal(t, model.StatusError, turn.Status)
}

func TestSend_IdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	streamer := &stubStreamer{body: func() io.ReadCloser { return pr }}
	s := New("p1", streamer, &stubTokens{}, Options{IdleTimeout: 100 * time.Millisecond})

	go func() {
		_, _ = io.WriteString(pw, frame("delta", `{"type":"delta","data":"Hel"}`))
	}()

	require.NoError(t, s.Send(context.Background(), "q"))
	turn := lastTurn(t, s)
	assert.Equal(t, "Hel\n\n"+model.TimeoutNotice, turn.Content)
	assert.Equal(t, model.StatusInterrupted, turn.Status)
}

func TestSend_Cancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	streamer := &stubStreamer{body: func() io.ReadCloser { return pr }}
	s := New("p1", streamer, &stubTokens{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan struct{})
	var once sync.Once
	unsubscribe := s.Subscribe(func(c model.Conversation) {
		if turn, ok := c.Last(); ok && turn.Content == "par" {
			once.Do(func() { close(seen) })
		}
	})
	defer unsubscribe()

	go func() {
		_, _ = io.WriteString(pw, frame("delta", `{"type":"delta","data":"par"}`))
		<-seen
		cancel()
	}()

	err := s.Send(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)

	turn := lastTurn(t, s)
	assert.Equal(t, "par", turn.Content)
	assert.Equal(t, model.StatusInterrupted, turn.Status)
	assert.False(t, s.Busy())
}

func TestSend_HistoryCarriesPriorTurns(t *testing.T) {
	streamer := &stubStreamer{body: bodyOf(
		frame("delta", `{"type":"delta","data":"answer"}`),
		frame("done", `{"type":"done"}`),
	)}
	s := New("p1", streamer, &stubTokens{}, Options{})
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, "one"))
	require.NoError(t, s.Send(ctx, "two"))

	reqs := streamer.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []model.HistoryEntry{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "answer"},
		{Role: model.RoleUser, Content: "two"},
	}, reqs[1].Messages)
}

// =============================================================================
// OBSERVERS
// =============================================================================

func TestSubscribe(t *testing.T) {
	streamer := &stubStreamer{body: bodyOf(
		frame("delta", `{"type":"delta","data":"x"}`),
		frame("done", `{"type":"done"}`),
	)}
	s := New("p1", streamer, &stubTokens{}, Options{})

	var snaps []model.Conversation
	unsubscribe := s.Subscribe(func(c model.Conversation) { snaps = append(snaps, c) })

	require.NoError(t, s.Send(context.Background(), "q"))
	require.NotEmpty(t, snaps)

	first, ok := snaps[0].Last()
	require.True(t, ok)
	assert.True(t, first.IsThinking())

	final, ok := snaps[len(snaps)-1].Last()
	require.True(t, ok)
	assert.Equal(t, "x", final.Content)
	assert.False(t, final.Pending)

	unsubscribe()
	n := len(snaps)
	require.NoError(t, s.Clear())
	assert.Len(t, snaps, n)
}
