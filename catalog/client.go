// Package catalog implements the query and mutation protocol against the
// book catalog backend: shape-normalized searches, optimistic-concurrency
// rating updates, unconditional deletes, and the create/upload flows.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mweigel/bookcat/config"
	"github.com/mweigel/bookcat/models"
	"github.com/mweigel/bookcat/parser"
	"github.com/mweigel/bookcat/session"
)

// Client talks to the catalog backend. All mutations run to completion before
// the caller observes a new state; the server-side If-Match precondition is
// the only lost-update protection.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	session    *session.Store
	refresher  *session.Refresher
	etags      *ETagCache
	limiter    *rate.Limiter
	Metrics    *Metrics
}

// NewClient builds a client configured from cfg. The refresher is used only
// by the create flow; rating and delete never refresh.
func NewClient(cfg *config.Config, store *session.Store, refresher *session.Refresher) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	etags, err := NewETagCache(cfg.ETagCacheSize)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.RequestsPerSec)), 1)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		session:    store,
		refresher:  refresher,
		etags:      etags,
		limiter:    limiter,
		Metrics:    NewMetrics(),
	}, nil
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// ETags exposes the concurrency-token cache.
func (c *Client) ETags() *ETagCache {
	return c.etags
}

// Query describes one search submission. Page is 0-based; the backend's page
// parameter is 1-based and only sent for browse-all queries.
type Query struct {
	Text      string
	MediaType models.MediaType
	MinRating int // 0 means unset; the parameter is then omitted entirely
	Page      int
	Size      int
}

// Search builds and runs one catalog query and normalizes the response into a
// QueryResult. On error the returned result is empty but non-nil, so callers
// can always render it; Search never mutates catalog state beyond the
// concurrency-token cache.
func (c *Client) Search(ctx context.Context, q Query) (*models.QueryResult, error) {
	empty := &models.QueryResult{Kind: models.KindFlat}

	text := strings.TrimSpace(q.Text)
	browseAll := text == "" && q.MediaType == "" && q.MinRating == 0

	endpoint := c.cfg.BaseURL + "/rest"
	params := url.Values{}
	lookupID := ""
	switch {
	case text == "":
		// collection fetch
	case parser.IsISBN(text):
		params.Set("isbn", text)
	default:
		lookupID = text
		endpoint += "/" + url.PathEscape(text)
	}
	if q.MediaType != "" {
		params.Set("art", string(q.MediaType))
	}
	if q.MinRating > 0 {
		params.Set("rating", strconv.Itoa(q.MinRating))
	}
	if browseAll {
		params.Set("page", strconv.Itoa(q.Page+1))
		params.Set("size", strconv.Itoa(q.Size))
	}
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return empty, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.do(req, "search")
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	etag := resp.Header.Get("ETag")
	if lookupID != "" {
		c.etags.Set(lookupID, etag)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		// A 304 can still carry a body; only an empty one is reported as
		// "no new data".
		if result, ok := c.tryNormalize(body, etag, lookupID); ok {
			return result, nil
		}
		c.Metrics.IncError(errorTypeLabel(ErrNotModified))
		return empty, ErrNotModified
	case resp.StatusCode == http.StatusNoContent:
		c.Metrics.IncError(errorTypeLabel(ErrNoContent))
		return empty, ErrNoContent
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		err := backendError(resp.StatusCode, body)
		c.Metrics.IncError(errorTypeLabel(err))
		return empty, err
	}

	if msg, ok := softError(body); ok {
		err := &BackendError{StatusCode: resp.StatusCode, Message: msg}
		c.Metrics.IncError(errorTypeLabel(err))
		return empty, err
	}

	result, err := c.normalize(body, etag, lookupID)
	if err != nil {
		return empty, err
	}
	c.Metrics.AddEntries(result.Len())
	return result, nil
}

// fetchVersionToken performs a single-entry fetch solely to obtain the
// version-stamp header, discarding the body. The token is cached on success.
func (c *Client) fetchVersionToken(ctx context.Context, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/rest/"+url.PathEscape(id), nil)
	if err != nil {
		return "", fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.do(req, "fetch_version")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &BackendError{StatusCode: resp.StatusCode}
	}

	etag := resp.Header.Get("ETag")
	c.etags.Set(id, etag)
	return etag, nil
}

// do issues one request with the ambient headers, pacing, and metrics every
// operation shares.
func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	c.Metrics.IncRequest(operation)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		c.Metrics.IncError("transport")
		slog.Debug("request failed",
			slog.String("operation", operation),
			slog.String("url", req.URL.String()),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%s request: %w", operation, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		slog.Debug("non-2xx response",
			slog.String("operation", operation),
			slog.Int("status", resp.StatusCode),
			slog.String("url", req.URL.String()),
		)
	}
	return resp, nil
}

// normalize decodes a response body into the tagged QueryResult union:
// object with a content array -> paged, array -> flat, single object -> a
// one-element single result. Shape sniffing happens here and nowhere else.
func (c *Client) normalize(body []byte, etag, lookupID string) (*models.QueryResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &models.QueryResult{Kind: models.KindFlat}, nil
	}

	if trimmed[0] == '[' {
		var entries []models.Book
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode entry list: %w", err)
		}
		return &models.QueryResult{Kind: models.KindFlat, Entries: entries}, nil
	}

	var envelope struct {
		Content []models.Book    `json:"content"`
		Page    *models.PageInfo `json:"page"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Content != nil {
		return &models.QueryResult{
			Kind:    models.KindPaged,
			Entries: envelope.Content,
			Page:    envelope.Page,
		}, nil
	}

	var entry models.Book
	if err := json.Unmarshal(trimmed, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	// Record the version stamp against the entry's own identifier when the
	// request was not a path fetch.
	if lookupID == "" {
		c.etags.Set(string(entry.ID), etag)
	}
	return &models.QueryResult{Kind: models.KindSingle, Entries: []models.Book{entry}}, nil
}

func (c *Client) tryNormalize(body []byte, etag, lookupID string) (*models.QueryResult, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	result, err := c.normalize(body, etag, lookupID)
	if err != nil {
		return nil, false
	}
	return result, true
}

// softError detects 2xx bodies that carry an error payload despite the
// success status.
func softError(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var probe struct {
		StatusCode json.RawMessage `json:"statusCode"`
		ErrorField json.RawMessage `json:"error"`
		Message    string          `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return "", false
	}
	if probe.StatusCode == nil && probe.ErrorField == nil && probe.Message == "" {
		return "", false
	}
	if probe.Message != "" {
		return probe.Message, true
	}
	return "unexpected error response from server", true
}

// backendError extracts the message/error field of a JSON error body, falling
// back to a generic text.
func backendError(status int, body []byte) *BackendError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return &BackendError{StatusCode: status, Message: payload.Message}
		}
		if payload.Error != "" {
			return &BackendError{StatusCode: status, Message: payload.Error}
		}
	}
	return &BackendError{StatusCode: status}
}
