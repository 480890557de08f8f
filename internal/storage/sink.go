package storage

import (
	"context"
	"errors"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
)

// Sink persists listings of one category
type Sink interface {
	Save(ctx context.Context, listings []listing.PropertyListing, category listing.Category, appendMode bool) error
}

// RunWriter persists listings tagged with the crawl run that produced them
type RunWriter interface {
	SaveRun(ctx context.Context, runID int64, listings []listing.PropertyListing, category listing.Category, appendMode bool) error
}

// RunSink binds a RunWriter to one crawl run
type RunSink struct {
	Writer RunWriter
	RunID  int64
}

// Save writes listings under the bound run
func (r RunSink) Save(ctx context.Context, listings []listing.PropertyListing, category listing.Category, appendMode bool) error {
	return r.Writer.SaveRun(ctx, r.RunID, listings, category, appendMode)
}

// MultiSink fans every save out to all of its sinks.
// A failing sink does not stop the others; errors are joined.
type MultiSink []Sink

// Save forwards listings to every sink
func (m MultiSink) Save(ctx context.Context, listings []listing.PropertyListing, category listing.Category, appendMode bool) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, listings, category, appendMode); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
