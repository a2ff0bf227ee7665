package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNoRefreshToken is returned when no unexpired refresh token exists.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresher exchanges credentials against the auth endpoints and keeps the
// store up to date.
type Refresher struct {
	httpClient *http.Client
	baseURL    string
	store      *Store
}

// NewRefresher builds a refresher for the backend at baseURL.
func NewRefresher(baseURL string, timeout time.Duration, store *Store) *Refresher {
	return &Refresher{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		store:      store,
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (r *Refresher) WithHTTPClient(c *http.Client) {
	r.httpClient = c
}

// Login exchanges username and password for a token pair and stores all three
// session values together.
func (r *Refresher) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, err := r.postForm(ctx, r.baseURL+"/auth/token", form)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidCredentials
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("login failed: http status %d", resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return fmt.Errorf("login response missing tokens")
	}
	return r.store.SetLogin(username, tokens.AccessToken, tokens.RefreshToken)
}

// Refresh exchanges the cached refresh token for a new token pair. It fails
// immediately when no refresh token exists and treats any non-2xx response as
// a hard failure. On success the access and refresh tokens are replaced
// atomically and the username keeps its value with a fresh expiry.
func (r *Refresher) Refresh(ctx context.Context) error {
	refreshToken := r.store.RefreshToken()
	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("refresh_token", refreshToken)

	resp, err := r.postForm(ctx, r.baseURL+"/auth/refresh", form)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("token refresh failed: http status %d", resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return fmt.Errorf("refresh response missing tokens")
	}
	return r.store.SetTokens(tokens.AccessToken, tokens.RefreshToken)
}

func (r *Refresher) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r.httpClient.Do(req)
}
