package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mweigel/bookcat/catalog"
	"github.com/mweigel/bookcat/models"
)

// Searcher is the slice of the catalog client the exporter needs.
type Searcher interface {
	Search(ctx context.Context, q catalog.Query) (*models.QueryResult, error)
}

// Summary describes one finished export run.
type Summary struct {
	StartTime time.Time
	EndTime   time.Time
	Pages     int
	Entries   int
}

// Exporter walks the catalog page by page (browse-all queries) and feeds every
// entry into the pipeline.
type Exporter struct {
	client   Searcher
	pipeline *Pipeline
	pageSize int
}

// NewExporter builds an exporter fetching pageSize entries per request.
func NewExporter(client Searcher, p *Pipeline, pageSize int) *Exporter {
	return &Exporter{
		client:   client,
		pipeline: p,
		pageSize: pageSize,
	}
}

// Run fetches all pages and streams them through the pipeline. An empty
// catalog (204) yields an empty summary, not an error.
func (e *Exporter) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartTime: time.Now()}
	defer func() { summary.EndTime = time.Now() }()

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := e.client.Search(ctx, catalog.Query{Page: page, Size: e.pageSize})
		if err != nil {
			if errors.Is(err, catalog.ErrNoContent) || errors.Is(err, catalog.ErrNotModified) {
				return summary, nil
			}
			return summary, fmt.Errorf("fetch page %d: %w", page, err)
		}

		entries := make([]*models.Book, 0, result.Len())
		for i := range result.Entries {
			entry := result.Entries[i]
			entries = append(entries, &entry)
		}
		if err := e.pipeline.Process(entries); err != nil && err != ErrPipelineClosed {
			return summary, fmt.Errorf("process page %d: %w", page, err)
		}

		summary.Pages++
		summary.Entries += result.Len()
		slog.Debug("export page fetched",
			slog.Int("page", page),
			slog.Int("entries", result.Len()),
		)

		// Flat and single results carry everything in one response.
		if result.Kind != models.KindPaged || result.Page == nil {
			return summary, nil
		}
		if result.Page.Number+1 >= result.Page.TotalPages {
			return summary, nil
		}
	}
}
