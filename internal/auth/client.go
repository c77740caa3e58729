// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/mindstack-tui/internal/logging"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds a single auth request.
	DefaultTimeout = 15 * time.Second

	// maxResponseSize caps auth response bodies (1MB).
	maxResponseSize = 1024 * 1024

	userAgent = "mindstack-tui"
)

// SignUpConfirmationMessage is shown when the account needs email confirmation.
const SignUpConfirmationMessage = "Account created! Check your email to verify, then sign in."

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL     string
	AnonKey string

	// Store persists the session. Defaults to an in-memory store.
	Store SessionStore

	HTTPClient *http.Client
	Logger     *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Client talks to the GoTrue REST API and owns the current session.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	store   SessionStore
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	session *Session

	// refreshMu serializes refreshes so concurrent Token calls share one.
	refreshMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	watcher *sessionWatcher

	// pending holds the key of an enrollment awaiting its first code.
	pending *enrollment
}

// New builds a client and loads any stored session. A stored session that
// cannot be opened is discarded.
func New(opts Options) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		anonKey: opts.AnonKey,
		http:    opts.HTTPClient,
		store:   opts.Store,
		logger:  opts.Logger,
		now:     opts.Now,
		subs:    make(map[int]func()),
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if c.store == nil {
		c.store = NewMemoryStore(nil)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.now == nil {
		c.now = time.Now
	}

	s, err := c.store.Load()
	if errors.Is(err, ErrCorruptSession) {
		c.logger.Warn("discarding unreadable session", "error", err)
		_ = c.store.Delete()
		s = nil
	} else if err != nil {
		return nil, err
	}
	c.session = s
	return c, nil
}

// IsConfigured reports whether the provider URL and anon key are set.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.anonKey != ""
}

// Close stops the session file watcher, if any.
func (c *Client) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// =============================================================================
// SIGN IN / SIGN UP / SIGN OUT
// =============================================================================

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges an email and password for a session and stores it.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Info, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", credentials{email, password}, &resp); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("sign in failed: no access token in response")
	}

	s := resp.session(c.now())
	if err := c.setSession(s); err != nil {
		return nil, err
	}
	c.logger.Info("signed in", "user", s.User.ID, logging.Secret("token", s.AccessToken))
	info := c.Session()
	return &info, nil
}

// SignUp creates an account. It returns true when the provider requires
// email confirmation before the first sign-in. When it does not, the
// returned session is stored and the user is signed in.
func (c *Client) SignUp(ctx context.Context, email, password string) (confirmationPending bool, err error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, errors.New("email and password are required")
	}

	var resp struct {
		tokenResponse
		ID               string `json:"id"`
		ConfirmationSent string `json:"confirmation_sent_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentials{email, password}, &resp); err != nil {
		return false, fmt.Errorf("sign up failed: %w", err)
	}

	if resp.AccessToken == "" {
		c.logger.Info("signed up, confirmation pending", "user", resp.ID)
		return true, nil
	}
	if err := c.setSession(resp.session(c.now())); err != nil {
		return false, err
	}
	c.logger.Info("signed up", "user", resp.User.ID)
	return false, nil
}

// SignOut revokes the session on the provider (best effort), deletes the
// stored session, and notifies subscribers. Signing out without a session
// is a no-op apart from clearing the store.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s != nil && c.IsConfigured() {
		if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", s.AccessToken, nil, nil); err != nil {
			c.logger.Debug("remote logout failed", "error", err)
		}
	}

	err := c.store.Delete()
	if s != nil {
		c.logger.Info("signed out", "user", s.User.ID)
		c.notifySignedOut()
	}
	return err
}

// =============================================================================
// TOKENS
// =============================================================================

// Token returns a usable access token, refreshing it when it is expired or
// about to expire. When the refresh is rejected the session ends and
// subscribers are notified.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return "", ErrNoSession
	}
	if !s.NeedsRefresh(c.now()) {
		return s.AccessToken, nil
	}
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return "", ErrNoSession
	}
	if !s.NeedsRefresh(c.now()) {
		return s.AccessToken, nil
	}
	if s.RefreshToken == "" {
		c.endSession("session expired")
		return "", ErrNoSession
	}

	var resp tokenResponse
	body := map[string]string{"refresh_token": s.RefreshToken}
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &resp)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) && authErr.Status >= 400 && authErr.Status < 500 {
			c.endSession("refresh rejected")
			return "", fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		if s.Valid(c.now()) {
			c.logger.Warn("token refresh failed, using current token", "error", err)
			return s.AccessToken, nil
		}
		return "", fmt.Errorf("failed to refresh session: %w", err)
	}

	next := resp.session(c.now())
	if next.User.ID == "" {
		next.User = s.User
	}
	if next.RefreshToken == "" {
		next.RefreshToken = s.RefreshToken
	}
	if err := c.setSession(next); err != nil {
		return "", err
	}
	c.logger.Debug("refreshed session", logging.Secret("token", next.AccessToken))
	return next.AccessToken, nil
}

// Session returns a snapshot of the current session.
func (c *Client) Session() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return Info{}
	}
	return Info{
		SignedIn:  true,
		Email:     c.session.User.Email,
		UserID:    c.session.User.ID,
		ExpiresAt: c.session.ExpiresAt,
		Valid:     c.session.Valid(c.now()),
	}
}

func (c *Client) setSession(s *Session) error {
	if err := c.store.Save(s); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return nil
}

// endSession drops the session without contacting the provider.
func (c *Client) endSession(reason string) {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()

	if err := c.store.Delete(); err != nil {
		c.logger.Warn("failed to delete session", "error", err)
	}
	if had {
		c.logger.Info("session ended", "reason", reason)
		c.notifySignedOut()
	}
}

// =============================================================================
// SIGNED-OUT NOTIFICATIONS
// =============================================================================

// OnSignedOut registers fn to run whenever the session ends. The returned
// function unsubscribes. fn runs on the goroutine that ended the session.
func (c *Client) OnSignedOut(fn func()) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Client) notifySignedOut() {
	c.subMu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// =============================================================================
// HTTP
// =============================================================================

// do sends a JSON request to the provider. bearer, when set, authenticates
// as the user; the anon key is always sent.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("auth response", "method", method, "path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return eb.toError(resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
