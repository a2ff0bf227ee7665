package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mweigel/bookcat/models"
	"github.com/mweigel/bookcat/parser"
)

// UpdateRating updates one entry's rating via full-entry replacement guarded
// by an If-Match precondition. On any failure the in-memory result is left
// untouched, so the displayed rating never drifts from the last confirmed
// server state. Unlike the create flow, no token refresh is attempted.
func (c *Client) UpdateRating(ctx context.Context, id string, rating int, result *models.QueryResult) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", rating)
	}

	accessToken := c.session.AccessToken()
	if accessToken == "" {
		c.Metrics.IncError(errorTypeLabel(ErrNotAuthenticated))
		return ErrNotAuthenticated
	}

	entry := result.Find(id)
	if entry == nil {
		c.Metrics.IncError(errorTypeLabel(ErrNotInResults))
		return ErrNotInResults
	}

	etag, ok := c.etags.Get(id)
	if !ok {
		fetched, err := c.fetchVersionToken(ctx, id)
		if err != nil {
			return fmt.Errorf("resolve version token: %w", err)
		}
		etag = fetched
	}
	if etag == "" {
		c.Metrics.IncError(errorTypeLabel(ErrNoVersionToken))
		return ErrNoVersionToken
	}

	// Full replacement: shallow copy with only the rating changed. The
	// backend contract takes complete entries, not partial patches.
	updated := *entry
	updated.Rating = rating
	payload, err := json.Marshal(&updated)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.BaseURL+"/rest/"+url.PathEscape(id), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("If-Match", etag)

	resp, err := c.do(req, "update_rating")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		backendErr := backendError(resp.StatusCode, body)
		if IsConflict(backendErr) {
			c.Metrics.IncConflict()
		}
		c.Metrics.IncError(errorTypeLabel(backendErr))
		return backendErr
	}

	entry.Rating = rating
	c.etags.Set(id, resp.Header.Get("ETag"))
	return nil
}

// Delete requests unconditional deletion of one entry. Success removes the
// entry from the in-memory result; there is no re-fetch. No version token is
// required and, as with rating updates, no refresh is attempted.
func (c *Client) Delete(ctx context.Context, id string, result *models.QueryResult) error {
	accessToken := c.session.AccessToken()
	if accessToken == "" {
		c.Metrics.IncError(errorTypeLabel(ErrNotAuthenticated))
		return ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/rest/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.do(req, "delete")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		backendErr := &BackendError{StatusCode: resp.StatusCode}
		c.Metrics.IncError(errorTypeLabel(backendErr))
		return backendErr
	}

	result.Remove(id)
	return nil
}

// Create submits a new entry. A missing access token triggers one best-effort
// refresh before giving up, and a 401 response triggers one refresh-and-retry;
// both at most once per call.
func (c *Client) Create(ctx context.Context, book *models.Book) (string, error) {
	if err := parser.ValidateBook(book); err != nil {
		return "", err
	}

	accessToken := c.session.AccessToken()
	if accessToken == "" {
		if err := c.refreshOnce(ctx); err != nil {
			return "", ErrNotAuthenticated
		}
		if accessToken = c.session.AccessToken(); accessToken == "" {
			return "", ErrNotAuthenticated
		}
	}

	resp, err := c.postEntry(ctx, book, accessToken)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err := c.refreshOnce(ctx); err != nil {
			return "", ErrNotAuthenticated
		}
		if accessToken = c.session.AccessToken(); accessToken == "" {
			return "", ErrNotAuthenticated
		}
		if resp, err = c.postEntry(ctx, book, accessToken); err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		backendErr := backendError(resp.StatusCode, body)
		if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(backendErr.Message, "existiert bereits") {
			c.Metrics.IncError(errorTypeLabel(ErrDuplicateISBN))
			return "", fmt.Errorf("%w: %s", ErrDuplicateISBN, backendErr.Message)
		}
		c.Metrics.IncError(errorTypeLabel(backendErr))
		return "", backendErr
	}

	id := ""
	if location := resp.Header.Get("Location"); location != "" {
		parts := strings.Split(strings.TrimSuffix(location, "/"), "/")
		id = parts[len(parts)-1]
	}
	c.etags.Set(id, resp.Header.Get("ETag"))
	return id, nil
}

func (c *Client) postEntry(ctx context.Context, book *models.Book, accessToken string) (*http.Response, error) {
	payload, err := json.Marshal(book)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rest", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req, "create")
}

func (c *Client) refreshOnce(ctx context.Context) error {
	if c.refresher == nil {
		return ErrNotAuthenticated
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		c.Metrics.IncRefresh("failure")
		return err
	}
	c.Metrics.IncRefresh("success")
	return nil
}

// UploadImage attaches a cover image to the entry with the given ISBN. The
// entry id is resolved via an ISBN-filtered fetch first, matching the upload
// page's behavior.
func (c *Client) UploadImage(ctx context.Context, isbn, imagePath string) error {
	accessToken := c.session.AccessToken()
	if accessToken == "" {
		c.Metrics.IncError(errorTypeLabel(ErrNotAuthenticated))
		return ErrNotAuthenticated
	}

	id, err := c.resolveISBN(ctx, isbn)
	if err != nil {
		return err
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rest/"+url.PathEscape(id), &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.do(req, "upload_image")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if message == "" {
			return &BackendError{StatusCode: resp.StatusCode}
		}
		return &BackendError{StatusCode: resp.StatusCode, Message: "upload failed: " + message}
	}
	return nil
}

// resolveISBN finds the entry id behind an ISBN via the filtered collection
// fetch, expecting the paginated envelope shape.
func (c *Client) resolveISBN(ctx context.Context, isbn string) (string, error) {
	if !parser.IsISBN(isbn) {
		return "", fmt.Errorf("invalid isbn %q", isbn)
	}
	result, err := c.Search(ctx, Query{Text: isbn})
	if err != nil {
		return "", fmt.Errorf("no entry with isbn %q: %w", isbn, err)
	}
	if result.Len() == 0 || result.Entries[0].ID == "" {
		return "", fmt.Errorf("no entry with isbn %q", isbn)
	}
	return string(result.Entries[0].ID), nil
}
