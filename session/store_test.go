package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	return NewStore(path, 30*time.Minute, time.Hour)
}

func TestStoreLoginAndExpiry(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()
	store.now = func() time.Time { return base }

	if err := store.SetLogin("admin", "access-1", "refresh-1"); err != nil {
		t.Fatalf("set login: %v", err)
	}
	if got := store.AccessToken(); got != "access-1" {
		t.Fatalf("access token = %q", got)
	}
	if got := store.RefreshToken(); got != "refresh-1" {
		t.Fatalf("refresh token = %q", got)
	}
	if got := store.Username(); got != "admin" {
		t.Fatalf("username = %q", got)
	}

	// access expires first
	store.now = func() time.Time { return base.Add(31 * time.Minute) }
	if got := store.AccessToken(); got != "" {
		t.Fatalf("expired access token should read as absent, got %q", got)
	}
	if got := store.RefreshToken(); got != "refresh-1" {
		t.Fatalf("refresh token should still be valid, got %q", got)
	}

	// refresh and username co-expire
	store.now = func() time.Time { return base.Add(61 * time.Minute) }
	if store.RefreshToken() != "" || store.Username() != "" {
		t.Fatalf("refresh token and username should co-expire")
	}
}

func TestStoreSetTokensPreservesUsername(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()
	store.now = func() time.Time { return base }

	if err := store.SetLogin("admin", "access-1", "refresh-1"); err != nil {
		t.Fatalf("set login: %v", err)
	}

	// near username expiry, a refresh re-stamps it
	store.now = func() time.Time { return base.Add(59 * time.Minute) }
	if err := store.SetTokens("access-2", "refresh-2"); err != nil {
		t.Fatalf("set tokens: %v", err)
	}

	store.now = func() time.Time { return base.Add(90 * time.Minute) }
	if got := store.Username(); got != "admin" {
		t.Fatalf("username should survive with fresh expiry, got %q", got)
	}
	if got := store.AccessToken(); got != "access-2" {
		t.Fatalf("access token = %q, want access-2", got)
	}
	if got := store.RefreshToken(); got != "refresh-2" {
		t.Fatalf("refresh token = %q, want refresh-2", got)
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	first := NewStore(path, 30*time.Minute, time.Hour)
	if err := first.SetLogin("admin", "access-1", "refresh-1"); err != nil {
		t.Fatalf("set login: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat session file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("session file permissions = %o, want 600", perm)
	}

	second := NewStore(path, 30*time.Minute, time.Hour)
	if got := second.AccessToken(); got != "access-1" {
		t.Fatalf("second instance access token = %q", got)
	}
}

func TestStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewStore(path, 30*time.Minute, time.Hour)
	if err := store.SetLogin("admin", "access-1", "refresh-1"); err != nil {
		t.Fatalf("set login: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.AccessToken() != "" || store.RefreshToken() != "" || store.Username() != "" {
		t.Fatalf("credentials should be cleared together")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("session file should be removed, stat err = %v", err)
	}
	// clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestStoreJWTExpiryOverridesTTL(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()
	store.now = func() time.Time { return base }

	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(base.Add(5 * time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if err := store.SetLogin("admin", token, "refresh-1"); err != nil {
		t.Fatalf("set login: %v", err)
	}

	// past the exp claim but well within the fixed 30 minute TTL
	store.now = func() time.Time { return base.Add(6 * time.Minute) }
	if got := store.AccessToken(); got != "" {
		t.Fatalf("token past its exp claim should read as absent, got %q", got)
	}
}
