// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRatePerSec is the sustained request rate.
	DefaultRatePerSec = 5.0

	// rateBurst is the limiter burst size.
	rateBurst = 5

	// MaxResponseSize caps JSON response bodies (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "mindstack-tui"
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	BaseURL string
	Tokens  auth.TokenSource

	// Timeout bounds non-streaming requests. Defaults to DefaultTimeout.
	Timeout time.Duration
	// RatePerSec limits outgoing requests. Defaults to DefaultRatePerSec.
	RatePerSec float64

	// HTTPClient, when set, is used for both plain and streaming requests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the backend API.
type Client struct {
	baseURL string
	tokens  auth.TokenSource
	http    *http.Client
	// stream has no timeout; the caller's context bounds it.
	stream  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	if opts.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = DefaultRatePerSec
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		tokens:  opts.Tokens,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), rateBurst),
		logger:  opts.Logger,
	}
	if opts.HTTPClient != nil {
		c.http = opts.HTTPClient
		c.stream = opts.HTTPClient
	} else {
		transport := newTransport()
		c.http = &http.Client{Transport: transport, Timeout: opts.Timeout}
		c.stream = &http.Client{Transport: transport}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// PROJECTS
// =============================================================================

// ListProjects returns the user's projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if resp.Projects == nil {
		resp.Projects = []Project{}
	}
	return resp.Projects, nil
}

// CreateProject creates a project. The name is required; the description
// may be empty.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	body := map[string]string{"name": name, "description": strings.TrimSpace(description)}

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", body, http.StatusCreated, &raw); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	// The project may come back bare or wrapped in {"project": ...}.
	var wrapped struct {
		Project *Project `json:"project"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &wrapped) == nil && wrapped.Project != nil {
		return wrapped.Project, nil
	}
	p := &Project{Name: name, Description: body["description"]}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, p)
	}
	return p, nil
}

// =============================================================================
// CAPTURES
// =============================================================================

// ListCaptures returns a project's captures, newest first as sent by the server.
func (c *Client) ListCaptures(ctx context.Context, projectID string) ([]Capture, error) {
	var resp struct {
		Captures []Capture `json:"captures"`
	}
	path := "/api/projects/" + url.PathEscape(projectID) + "/captures"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	if resp.Captures == nil {
		resp.Captures = []Capture{}
	}
	return resp.Captures, nil
}

// DeleteCapture deletes a capture.
func (c *Client) DeleteCapture(ctx context.Context, captureID string) error {
	path := "/api/captures/" + url.PathEscape(captureID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, 0, nil); err != nil {
		return fmt.Errorf("failed to delete capture: %w", err)
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// OpenChat starts a streamed chat request and returns the response body.
// The caller must close it. A 401 returns ErrUnauthorized without signing
// out.
func (c *Client) OpenChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if req.Messages == nil {
		req.Messages = []model.HistoryEntry{}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, c.stream, http.MethodPost, "/api/chat", token, req, "text/event-stream")
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp.Body, nil
}

// =============================================================================
// HTTP
// =============================================================================

// doJSON performs an authenticated JSON request. want is the expected
// status; 0 accepts any 2xx.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, want int, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, c.http, method, path, token, in, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.tokens.SignOut(ctx); err != nil {
			c.logger.Warn("sign out after 401 failed", "error", err)
		}
		return ErrUnauthorized
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if want != 0 {
		ok = resp.StatusCode == want
	}
	if !ok {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}

	data, err := readBody(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// send waits for the limiter and issues one request.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path, token string, in any, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug("api response",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		logging.Secret("token", token))
	return resp, nil
}

// readBody reads a response body with a size limit.
func readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return data, nil
}

func readAPIError(resp *http.Response) error {
	e := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && eb.message() != "" {
		e.Message = eb.message()
	} else if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		e.Message = text
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
