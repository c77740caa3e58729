// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// env.go - Wiring of config, logging, auth, cache and API client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/auth"
	"github.com/jeranaias/mindstack-tui/internal/config"
	"github.com/jeranaias/mindstack-tui/internal/logging"
	"github.com/jeranaias/mindstack-tui/internal/storage"
)

// env is everything a command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	auth   *auth.Client
	cache  *storage.Cache
	api    *api.CachedClient
	quiet  bool
	json   bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	closers []io.Closer
}

// newEnv loads the config and opens the session, cache and log file.
func newEnv(args Args) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if args.Offline {
		cfg.Offline = true
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}

	e := &env{
		cfg:    cfg,
		quiet:  args.Quiet,
		json:   args.JSON,
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	e.logger = logging.Discard()
	if logPath, err := cfg.LogPath(); err == nil {
		logger, closer, err := logging.Open(logPath, cfg.Log.Level)
		if err != nil {
			fmt.Fprintf(e.errOut, "Warning: logging disabled: %v\n", err)
		} else {
			e.logger = logger
			e.closers = append(e.closers, closer)
		}
	}

	sessionPath, err := cfg.SessionPath()
	if err != nil {
		e.Close()
		return nil, err
	}
	store, err := auth.NewFileStore(sessionPath)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	ac, err := auth.New(auth.Options{
		URL:     cfg.Auth.URL,
		AnonKey: cfg.Auth.AnonKey,
		Store:   store,
		Logger:  e.logger.With("component", "auth"),
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.auth = ac
	e.closers = append(e.closers, ac)

	if cfg.Cache.Enabled {
		cachePath, err := cfg.CachePath()
		if err == nil {
			e.cache, err = storage.Open(cachePath)
		}
		if err != nil {
			e.logger.Warn("offline cache disabled", "error", err)
			e.cache = nil
		} else {
			e.closers = append(e.closers, e.cache)
		}
	}

	client, err := api.New(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Tokens:     ac,
		Timeout:    cfg.APITimeout(),
		RatePerSec: cfg.API.RatePerSec,
		Logger:     e.logger.With("component", "api"),
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.api = api.NewCached(client, e.cache, cfg.Offline, e.logger.With("component", "cache"))
	return e, nil
}

// Close releases everything newEnv opened, newest first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
	e.closers = nil
}

func (e *env) prompter() *prompter {
	return newPrompter(e.in, e.errOut)
}

func (e *env) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.APITimeout())
}

// say prints a status line unless --quiet was given.
func (e *env) say(format string, a ...any) {
	if e.quiet {
		return
	}
	fmt.Fprintf(e.errOut, format+"\n", a...)
}

// resolveProject finds a project by ID or by a unique name prefix.
func (e *env) resolveProject(ctx context.Context, ref string) (api.Project, error) {
	if strings.TrimSpace(ref) == "" {
		return api.Project{}, NewUsageError("a project is required", "mindstack ask PROJECT \"question\"")
	}
	projects, _, err := e.api.ListProjects(ctx)
	if err != nil {
		return api.Project{}, err
	}
	return matchProject(projects, ref)
}

func matchProject(projects []api.Project, ref string) (api.Project, error) {
	for _, p := range projects {
		if p.ID == ref {
			return p, nil
		}
	}
	needle := strings.ToLower(strings.TrimSpace(ref))
	var matches []api.Project
	for _, p := range projects {
		name := strings.ToLower(p.Name)
		if name == needle {
			return p, nil
		}
		if strings.HasPrefix(name, needle) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return api.Project{}, &NotFoundError{Resource: "project", ID: ref}
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, p := range matches {
		names[i] = p.Name
	}
	return api.Project{}, errors.New("ambiguous project " + ref + ": matches " + strings.Join(names, ", "))
}
