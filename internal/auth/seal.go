// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/mindstack-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// sealedPrefix marks a sealed value: MS1:base64(nonce|ciphertext|tag)
	sealedPrefix = "MS1:"

	keySize    = 32
	saltSize   = 32
	secretSize = 32
)

// kdfIterations is the PBKDF2-SHA-256 work factor. Tests lower it.
var kdfIterations = 600000

// zeroBytes clears key material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// SEALER
// =============================================================================

// sealer encrypts session blobs with a key derived from the install key file.
type sealer struct {
	aead cipher.AEAD
}

// newSealer loads the key file at keyPath, creating it on first use.
// The file holds salt followed by a random secret.
func newSealer(keyPath string) (*sealer, error) {
	material, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		material = make([]byte, saltSize+secretSize)
		if _, err := io.ReadFull(rand.Reader, material); err != nil {
			return nil, fmt.Errorf("failed to generate key material: %w", err)
		}
		if err := util.AtomicWriteFile(keyPath, material, 0600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer zeroBytes(material)

	if len(material) != saltSize+secretSize {
		return nil, fmt.Errorf("key file %s has unexpected size %d", keyPath, len(material))
	}

	key := pbkdf2.Key(material[saltSize:], material[:saltSize], kdfIterations, keySize, sha256.New)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any tampering yields ErrCorruptSession.
func (s *sealer) Open(sealed string) ([]byte, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return nil, fmt.Errorf("%w: missing prefix", ErrCorruptSession)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrCorruptSession)
	}
	plaintext, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrCorruptSession)
	}
	return plaintext, nil
}
