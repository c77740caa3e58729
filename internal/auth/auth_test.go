// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	kdfIterations = 1000
	os.Exit(m.Run())
}

const (
	testAnonKey = "anon-key"
	testSecret  = "JBSWY3DPEHPK3PXP"
)

// fakeGoTrue is a minimal GoTrue stand-in.
type fakeGoTrue struct {
	mu          sync.Mutex
	calls       map[string]int
	refreshFail bool
	autoConfirm bool
	tokenSeq    int
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	t.Helper()
	f := &fakeGoTrue{calls: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeGoTrue) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	if gt := r.URL.Query().Get("grant_type"); gt != "" {
		key += "?" + gt
	}
	f.mu.Lock()
	f.calls[key]++
	f.tokenSeq++
	seq := f.tokenSeq
	refreshFail, autoConfirm := f.refreshFail, f.autoConfirm
	f.mu.Unlock()

	if r.Header.Get("apikey") != testAnonKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	session := func() map[string]any {
		return map[string]any{
			"access_token":  "access-" + string(rune('a'+seq%26)),
			"refresh_token": "refresh-token",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]string{"id": "user-1", "email": "a@b.com"},
		}
	}
	writeJSON := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch key {
	case "POST /auth/v1/token?password":
		if body["password"] != "correct" {
			writeJSON(http.StatusBadRequest, map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
			return
		}
		writeJSON(http.StatusOK, session())
	case "POST /auth/v1/token?refresh_token":
		if refreshFail || body["refresh_token"] != "refresh-token" {
			writeJSON(http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid Refresh Token"})
			return
		}
		writeJSON(http.StatusOK, session())
	case "POST /auth/v1/signup":
		if autoConfirm {
			writeJSON(http.StatusOK, session())
			return
		}
		writeJSON(http.StatusOK, map[string]any{"id": "user-2", "email": body["email"], "confirmation_sent_at": "2025-01-01T00:00:00Z"})
	case "POST /auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	case "POST /auth/v1/factors":
		writeJSON(http.StatusOK, map[string]any{
			"id":   "factor-1",
			"type": "totp",
			"totp": map[string]string{
				"qr_code": "data:image/svg+xml;utf-8,<svg/>",
				"secret":  testSecret,
				"uri":     "otpauth://totp/MindStack:a@b.com?secret=" + testSecret + "&issuer=MindStack",
			},
		})
	case "POST /auth/v1/factors/factor-1/challenge":
		writeJSON(http.StatusOK, map[string]any{"id": "challenge-1", "expires_at": time.Now().Add(time.Minute).Unix()})
	case "POST /auth/v1/factors/factor-1/verify":
		if body["challenge_id"] != "challenge-1" {
			writeJSON(http.StatusBadRequest, map[string]string{"msg": "bad challenge"})
			return
		}
		s := session()
		s["access_token"] = "aal2-token"
		writeJSON(http.StatusOK, s)
	case "GET /auth/v1/user":
		writeJSON(http.StatusOK, map[string]any{
			"id":      "user-1",
			"factors": []map[string]string{{"id": "factor-1", "factor_type": "totp", "status": "verified"}},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClient(t *testing.T, srv *httptest.Server, store SessionStore) (*Client, *clock) {
	t.Helper()
	clk := &clock{t: time.Now()}
	c, err := New(Options{URL: srv.URL + "/", AnonKey: testAnonKey, Store: store, Now: clk.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clk
}

// =============================================================================
// SIGN IN / SIGN UP TESTS
// =============================================================================

func TestSignIn_Success(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	store := NewMemoryStore(nil)
	c, _ := newClient(t, srv, store)

	info, err := c.SignIn(context.Background(), " a@b.com ", "correct")
	require.NoError(t, err)
	assert.True(t, info.SignedIn)
	assert.True(t, info.Valid)
	assert.Equal(t, "a@b.com", info.Email)

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "refresh-token", stored.RefreshToken)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)

	_, err := c.SignIn(context.Background(), "a@b.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusBadRequest, authErr.Status)
	assert.Equal(t, "Invalid login credentials", authErr.Message)
	assert.False(t, c.Session().SignedIn)
}

func TestSignIn_NotConfigured(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)
	_, err = c.SignIn(context.Background(), "a@b.com", "correct")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSignUp(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)

	pending, err := c.SignUp(context.Background(), "new@b.com", "pw")
	require.NoError(t, err)
	assert.True(t, pending)
	assert.False(t, c.Session().SignedIn)

	f.mu.Lock()
	f.autoConfirm = true
	f.mu.Unlock()

	pending, err = c.SignUp(context.Background(), "new@b.com", "pw")
	require.NoError(t, err)
	assert.False(t, pending)
	assert.True(t, c.Session().SignedIn)
}

// =============================================================================
// TOKEN TESTS
// =============================================================================

func TestToken_NoSession(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)
	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestToken_ReusesValidToken(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)
	_, err := c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)

	first, err := c.Token(context.Background())
	require.NoError(t, err)
	second, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Zero(t, f.count("POST /auth/v1/token?refresh_token"))
}

func TestToken_RefreshesNearExpiry(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, clk := newClient(t, srv, nil)
	_, err := c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)
	before, _ := c.Token(context.Background())

	clk.Advance(time.Hour - 10*time.Second)

	after, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, 1, f.count("POST /auth/v1/token?refresh_token"))
	assert.Equal(t, "a@b.com", c.Session().Email)
}

func TestToken_ConcurrentRefreshSharesOneCall(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, clk := newClient(t, srv, nil)
	_, err := c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Token(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.count("POST /auth/v1/token?refresh_token"))
}

func TestToken_RefreshRejectedSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	store := NewMemoryStore(nil)
	c, clk := newClient(t, srv, store)
	_, err := c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)

	var fired atomic.Int32
	c.OnSignedOut(func() { fired.Add(1) })

	f.mu.Lock()
	f.refreshFail = true
	f.mu.Unlock()
	clk.Advance(2 * time.Hour)

	_, err = c.Token(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, c.Session().SignedIn)

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// =============================================================================
// SIGN OUT TESTS
// =============================================================================

func TestSignOut_NotifiesSubscribers(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)
	_, err := c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)

	var a, b atomic.Int32
	c.OnSignedOut(func() { a.Add(1) })
	unsubscribe := c.OnSignedOut(func() { b.Add(1) })
	unsubscribe()
	unsubscribe()

	require.NoError(t, c.SignOut(context.Background()))
	require.NoError(t, c.SignOut(context.Background()))

	assert.Equal(t, int32(1), a.Load())
	assert.Zero(t, b.Load())
	assert.Equal(t, 1, f.count("POST /auth/v1/logout"))

	_, err = c.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSignOut_RemoteFailureStillClears(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewMemoryStore(&Session{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)})
	c, err := New(Options{URL: srv.URL, AnonKey: testAnonKey, Store: store})
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	assert.False(t, c.Session().SignedIn)
}

// =============================================================================
// FILE STORE TESTS
// =============================================================================

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	s, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, s)

	want := &Session{AccessToken: "secret-access", RefreshToken: "r", ExpiresAt: time.Unix(1900000000, 0).UTC(), User: User{ID: "u", Email: "a@b.com"}}
	require.NoError(t, store.Save(want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	keyInfo, err := os.Stat(path + ".key")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStore_Tampered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(&Session{AccessToken: "x"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(string(raw), sealedPrefix))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0x01
	tampered := sealedPrefix + base64.StdEncoding.EncodeToString(blob)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0600))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCorruptSession)

	c, err := New(Options{Store: store})
	require.NoError(t, err)
	assert.False(t, c.Session().SignedIn)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_DifferentInstallKeyCannotOpen(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileStore(filepath.Join(dir, "a.enc"))
	require.NoError(t, err)
	require.NoError(t, a.Save(&Session{AccessToken: "x"}))

	sealed, err := os.ReadFile(filepath.Join(dir, "a.enc"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.enc"), sealed, 0600))

	b, err := NewFileStore(filepath.Join(dir, "b.enc"))
	require.NoError(t, err)
	_, err = b.Load()
	assert.ErrorIs(t, err, ErrCorruptSession)
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatch_ExternalRemovalSignsOut(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	path := filepath.Join(t.TempDir(), "session.enc")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	c, _ := newClient(t, srv, store)
	_, err = c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)
	require.NoError(t, c.Watch())

	fired := make(chan struct{}, 1)
	c.OnSignedOut(func() { fired <- struct{}{} })

	require.NoError(t, os.Remove(path))

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("signed-out notification not delivered")
	}
	assert.False(t, c.Session().SignedIn)
}

// =============================================================================
// MFA TESTS
// =============================================================================

func TestMFA_EnrollAndVerify(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)
	_, err := c.SignIn(context.Background(), "a@b.com", "correct")
	require.NoError(t, err)

	enr, err := c.EnrollTOTP(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, "factor-1", enr.FactorID)
	assert.Equal(t, testSecret, enr.Secret)
	assert.Equal(t, "MindStack", enr.Issuer)

	err = c.ChallengeAndVerify(context.Background(), enr.FactorID, "000000x")
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.Zero(t, f.count("POST /auth/v1/factors/factor-1/challenge"))

	code, err := enr.CurrentCode(time.Now())
	require.NoError(t, err)
	require.NoError(t, c.ChallengeAndVerify(context.Background(), enr.FactorID, code))
	assert.Equal(t, 1, f.count("POST /auth/v1/factors/factor-1/verify"))

	token, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aal2-token", token)

	factors, err := c.Factors(context.Background())
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.Equal(t, "verified", factors[0].Status)
}

func TestMFA_RequiresSession(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c, _ := newClient(t, srv, nil)
	_, err := c.EnrollTOTP(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &Error{Status: 401}, ErrNoSession)
	assert.ErrorIs(t, &Error{Status: 400, Code: "invalid_grant"}, ErrInvalidCredentials)
	assert.NotErrorIs(t, &Error{Status: 500}, ErrNoSession)
	assert.Contains(t, (&Error{Status: 422, Code: "weak_password", Message: "too short"}).Error(), "weak_password")
}
