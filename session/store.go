// Package session manages the backend credentials shared by client invocations.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials are the three co-expiring session values. The access token is
// short-lived; refresh token and username share the longer expiry.
type Credentials struct {
	AccessToken   string    `json:"access_token,omitempty"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	Username      string    `json:"username,omitempty"`
	AccessExpiry  time.Time `json:"access_expiry,omitempty"`
	RefreshExpiry time.Time `json:"refresh_expiry,omitempty"`
}

// Store is a file-backed credential store. Values past their expiry read as
// absent. All consumers receive the store by reference; nothing reads ambient
// global state.
type Store struct {
	path       string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu     sync.Mutex
	creds  Credentials
	loaded bool
}

// NewStore builds a store persisting to path with the given token lifetimes.
func NewStore(path string, accessTTL, refreshTTL time.Duration) *Store {
	return &Store{
		path:       path,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessToken returns the stored access token, or "" when absent or expired.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if s.creds.AccessToken == "" || !s.now().Before(s.creds.AccessExpiry) {
		return ""
	}
	return s.creds.AccessToken
}

// RefreshToken returns the stored refresh token, or "" when absent or expired.
func (s *Store) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if s.creds.RefreshToken == "" || !s.now().Before(s.creds.RefreshExpiry) {
		return ""
	}
	return s.creds.RefreshToken
}

// Username returns the stored username; it expires together with the refresh
// token.
func (s *Store) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	if s.creds.Username == "" || !s.now().Before(s.creds.RefreshExpiry) {
		return ""
	}
	return s.creds.Username
}

// SetLogin stores a fresh credential triple after a successful login.
func (s *Store) SetLogin(username, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	s.creds = Credentials{
		AccessToken:   access,
		RefreshToken:  refresh,
		Username:      username,
		AccessExpiry:  s.accessExpiry(access),
		RefreshExpiry: s.now().Add(s.refreshTTL),
	}
	return s.saveLocked()
}

// SetTokens atomically replaces the access and refresh tokens after a refresh
// exchange. The username value is preserved and re-stamped with the refresh
// expiry.
func (s *Store) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	s.creds.AccessToken = access
	s.creds.RefreshToken = refresh
	s.creds.AccessExpiry = s.accessExpiry(access)
	s.creds.RefreshExpiry = s.now().Add(s.refreshTTL)
	return s.saveLocked()
}

// Clear drops all credentials together (logout).
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// accessExpiry prefers the exp claim of a JWT access token over the fixed TTL.
// The claim is read without signature verification; the client never trusts
// the token contents for anything but scheduling.
func (s *Store) accessExpiry(token string) time.Time {
	fallback := s.now().Add(s.accessTTL)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	if exp.Time.Before(s.now()) {
		return fallback
	}
	return exp.Time
}

func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return
	}
	s.creds = creds
}

func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session directory: %w", err)
		}
	}
	data, err := json.Marshal(s.creds)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
