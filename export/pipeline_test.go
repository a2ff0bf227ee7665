package export

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mweigel/bookcat/models"
)

// collectingWriter records every entry it receives.
type collectingWriter struct {
	mu       sync.Mutex
	entries  []*models.Book
	writeErr error
}

func (w *collectingWriter) Write(entries []*models.Book) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.entries = append(w.entries, entries...)
	return nil
}

func (w *collectingWriter) Close() error    { return nil }
func (w *collectingWriter) Validate() error { return nil }

func (w *collectingWriter) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func entry(id string) *models.Book {
	return &models.Book{ID: models.ID(id), ISBN: "978-3-16-148410-0", Rating: 3}
}

func TestPipelineProcessesEntries(t *testing.T) {
	writer := &collectingWriter{}
	p := NewPipeline(writer)
	p.Start(2)

	if err := p.Process([]*models.Book{entry("1"), entry("2"), entry("3")}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.len(); got != 3 {
		t.Fatalf("written entries = %d, want 3", got)
	}

	metrics := p.GetMetrics()
	if processed := metrics["processed_entries"].(int64); processed != 3 {
		t.Fatalf("processed_entries = %d, want 3", processed)
	}
}

func TestPipelineDeduplicatesByID(t *testing.T) {
	writer := &collectingWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	if err := p.Process([]*models.Book{entry("1"), entry("1"), entry("2")}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.len(); got != 2 {
		t.Fatalf("written entries = %d, want 2 after dedup", got)
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["duplicate_id"] != 1 {
		t.Fatalf("duplicate_id = %d, want 1", validation["duplicate_id"])
	}
}

func TestPipelineRejectsIncompleteEntries(t *testing.T) {
	writer := &collectingWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	noID := entry("")
	noISBN := entry("2")
	noISBN.ISBN = "  "
	if err := p.Process([]*models.Book{noID, noISBN, entry("3")}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.len(); got != 1 {
		t.Fatalf("written entries = %d, want 1", got)
	}

	validation := p.GetMetrics()["validation_errors"].(map[string]int)
	if validation["missing_id"] != 1 || validation["missing_isbn"] != 1 {
		t.Fatalf("unexpected validation counters: %v", validation)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(&collectingWriter{})
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process([]*models.Book{entry("1")}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineSurfacesWriterError(t *testing.T) {
	writer := &collectingWriter{writeErr: errors.New("disk full")}
	p := NewPipeline(writer)
	p.Start(1)

	_ = p.Process([]*models.Book{entry("1")})
	err := p.Close()
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected writer error to surface, got %v", err)
	}
}
