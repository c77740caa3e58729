// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// SESSION FILE WATCHER
// =============================================================================

// sessionWatcher follows the session file so a sign-out or sign-in done by
// another mindstack process is picked up here.
type sessionWatcher struct {
	client  *Client
	path    string
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Watch starts following the session file of a FileStore. It is a no-op for
// other stores and when already watching.
func (c *Client) Watch() error {
	fs, ok := c.store.(*FileStore)
	if !ok || c.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic writes replace the file itself.
	if err := w.Add(filepath.Dir(fs.Path())); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch session directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &sessionWatcher{
		client:  c,
		path:    filepath.Clean(fs.Path()),
		watcher: w,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.watcher = sw
	go sw.processEvents()
	return nil
}

func (sw *sessionWatcher) processEvents() {
	defer close(sw.done)
	for {
		select {
		case <-sw.ctx.Done():
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				sw.client.endSession("session file removed")
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				sw.client.reload()
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.client.logger.Debug("session watcher error", "error", err)
		}
	}
}

// Close stops watching and waits for the event loop to exit.
func (sw *sessionWatcher) Close() error {
	sw.cancel()
	err := sw.watcher.Close()
	<-sw.done
	return err
}

// reload picks up a session written by another process.
func (c *Client) reload() {
	s, err := c.store.Load()
	if err != nil || s == nil {
		return
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}
