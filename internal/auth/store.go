// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jeranaias/mindstack-tui/internal/util"
)

// SessionStore persists the session between runs.
type SessionStore interface {
	// Load returns the stored session, or nil and no error when there is none.
	Load() (*Session, error)
	Save(s *Session) error
	// Delete removes the stored session. Deleting a missing session is not an error.
	Delete() error
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps the session sealed on disk.
type FileStore struct {
	path   string
	sealer *sealer
}

// NewFileStore opens a sealed store at path. The key file lives at path+".key".
func NewFileStore(path string) (*FileStore, error) {
	s, err := newSealer(path + ".key")
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, sealer: s}, nil
}

// Path returns the session file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load implements SessionStore.
func (f *FileStore) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	plaintext, err := f.sealer.Open(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plaintext)

	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return &s, nil
}

// Save implements SessionStore.
func (f *FileStore) Save(s *Session) error {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	defer zeroBytes(plaintext)

	sealed, err := f.sealer.Seal(plaintext)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(f.path, []byte(sealed), 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Delete implements SessionStore.
func (f *FileStore) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore returns a store seeded with s, which may be nil.
func NewMemoryStore(s *Session) *MemoryStore {
	return &MemoryStore{session: s}
}

// Load implements SessionStore.
func (m *MemoryStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	c := *m.session
	return &c, nil
}

// Save implements SessionStore.
func (m *MemoryStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.session = &c
	return nil
}

// Delete implements SessionStore.
func (m *MemoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
