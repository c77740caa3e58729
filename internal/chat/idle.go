// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"io"
	"sync/atomic"
	"time"
)

// idleReader closes the body when no data arrives for d.
type idleReader struct {
	body  io.ReadCloser
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func watchIdle(body io.ReadCloser, d time.Duration) *idleReader {
	r := &idleReader{body: body, d: d}
	r.timer = time.AfterFunc(d, func() {
		r.fired.Store(true)
		body.Close()
	})
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 && !r.fired.Load() {
		r.timer.Reset(r.d)
	}
	return n, err
}

func (r *idleReader) timedOut() bool {
	return r.fired.Load()
}

func (r *idleReader) stop() {
	r.timer.Stop()
}
