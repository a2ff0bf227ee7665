package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotAuthenticated is returned by mutations when no unexpired access
	// token is available. No network request is made in that case.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotInResults is returned when a mutation targets an entry that is
	// not part of the current in-memory query result.
	ErrNotInResults = errors.New("entry not found in current results")
	// ErrNoVersionToken is returned when no concurrency token could be
	// obtained for an entry, not even via a dedicated single-entry fetch.
	ErrNoVersionToken = errors.New("version token unavailable")
	// ErrNoContent marks a well-formed query that matched nothing (HTTP 204).
	ErrNoContent = errors.New("no entries found (204 No Content)")
	// ErrNotModified marks a 304 response that carried no body.
	ErrNotModified = errors.New("no new data (304 Not Modified)")
	// ErrDuplicateISBN marks a create rejected because the ISBN exists.
	ErrDuplicateISBN = errors.New("an entry with this ISBN already exists")
)

// BackendError carries a status code and the message extracted from the
// backend's error body, falling back to a generic text.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend request failed: http status %d", e.StatusCode)
}

// IsConflict reports whether err is a rejected If-Match precondition, meaning
// the entry changed since its version token was read.
func IsConflict(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.StatusCode == http.StatusPreconditionFailed
}

func errorTypeLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotInResults):
		return "not_in_results"
	case errors.Is(err, ErrNoVersionToken):
		return "no_version_token"
	case errors.Is(err, ErrNoContent), errors.Is(err, ErrNotModified):
		return "empty"
	case errors.Is(err, ErrDuplicateISBN):
		return "duplicate_isbn"
	case IsConflict(err):
		return "conflict"
	}
	var be *BackendError
	if errors.As(err, &be) {
		return "backend"
	}
	return "transport"
}
