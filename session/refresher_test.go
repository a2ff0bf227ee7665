package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

func newTestRefresher(t *testing.T) (*Refresher, *Store, *httpmock.MockTransport) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "session.json"), 30*time.Minute, time.Hour)
	refresher := NewRefresher("http://backend.test", 5*time.Second, store)
	transport := httpmock.NewMockTransport()
	refresher.WithHTTPClient(&http.Client{Transport: transport})
	return refresher, store, transport
}

func TestLoginStoresCredentialTriple(t *testing.T) {
	refresher, store, transport := newTestRefresher(t)

	transport.RegisterResponder("POST", "http://backend.test/auth/token",
		func(req *http.Request) (*http.Response, error) {
			if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Fatalf("content type = %q", ct)
			}
			if err := req.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if req.PostForm.Get("username") != "admin" || req.PostForm.Get("password") != "p" {
				t.Fatalf("unexpected form values: %v", req.PostForm)
			}
			return httpmock.NewStringResponse(200, `{"access_token":"a1","refresh_token":"r1"}`), nil
		})

	if err := refresher.Login(context.Background(), "admin", "p"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if store.AccessToken() != "a1" || store.RefreshToken() != "r1" || store.Username() != "admin" {
		t.Fatalf("credentials not stored together")
	}
}

func TestLoginRejected(t *testing.T) {
	refresher, _, transport := newTestRefresher(t)
	transport.RegisterResponder("POST", "http://backend.test/auth/token",
		httpmock.NewStringResponder(401, `{"message":"Unauthorized"}`))

	err := refresher.Login(context.Background(), "admin", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshWithoutTokenFailsFast(t *testing.T) {
	refresher, _, transport := newTestRefresher(t)

	err := refresher.Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if calls := transport.GetTotalCallCount(); calls != 0 {
		t.Fatalf("no request should be made without a refresh token, got %d", calls)
	}
}

func TestRefreshReplacesTokenPair(t *testing.T) {
	refresher, store, transport := newTestRefresher(t)
	if err := store.SetLogin("admin", "a1", "r1"); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	transport.RegisterResponder("POST", "http://backend.test/auth/refresh",
		func(req *http.Request) (*http.Response, error) {
			body, err := url.ParseQuery(readBody(t, req))
			if err != nil {
				t.Fatalf("parse body: %v", err)
			}
			if body.Get("refresh_token") != "r1" {
				t.Fatalf("refresh_token = %q", body.Get("refresh_token"))
			}
			return httpmock.NewStringResponse(200, `{"access_token":"a2","refresh_token":"r2"}`), nil
		})

	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if store.AccessToken() != "a2" || store.RefreshToken() != "r2" {
		t.Fatalf("token pair not replaced")
	}
	if store.Username() != "admin" {
		t.Fatalf("username value must be preserved")
	}
}

func TestRefreshNon2xxIsHardFailure(t *testing.T) {
	refresher, store, transport := newTestRefresher(t)
	if err := store.SetLogin("admin", "a1", "r1"); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	transport.RegisterResponder("POST", "http://backend.test/auth/refresh",
		httpmock.NewStringResponder(500, ""))

	if err := refresher.Refresh(context.Background()); err == nil {
		t.Fatalf("expected hard failure")
	}
	// the old pair stays in place
	if store.AccessToken() != "a1" || store.RefreshToken() != "r1" {
		t.Fatalf("failed refresh must not touch stored tokens")
	}
}

func readBody(t *testing.T, req *http.Request) string {
	t.Helper()
	if req.Body == nil {
		return ""
	}
	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}
