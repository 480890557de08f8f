package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/sirupsen/logrus"
)

// Saver persists listings of one category
type Saver interface {
	Save(ctx context.Context, listings []listing.PropertyListing, category listing.Category, appendMode bool) error
}

type bucket struct {
	keys     map[string]bool
	listings []listing.PropertyListing
	flushed  int  // listings[:flushed] already written
	append   bool // mode of the first save, applied to the first flush
}

// Dataset holds crawled listings in memory until they are flushed to storage.
// It is a crawl sink: repeated saves of the same listing are kept once.
type Dataset struct {
	mu      sync.Mutex
	buckets map[listing.Category]*bucket
}

// NewDataset creates an empty in-memory dataset
func NewDataset() *Dataset {
	return &Dataset{buckets: make(map[listing.Category]*bucket)}
}

// Save adds listings not seen before
func (d *Dataset) Save(_ context.Context, listings []listing.PropertyListing, category listing.Category, appendMode bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buckets[category]
	if !ok {
		b = &bucket{keys: make(map[string]bool), append: appendMode}
		d.buckets[category] = b
	}

	for _, l := range listings {
		key := l.Key()
		if b.keys[key] {
			continue
		}
		b.keys[key] = true
		b.listings = append(b.listings, l)
	}
	return nil
}

// Listings returns a copy of the listings held for a category, in insertion order
func (d *Dataset) Listings(category listing.Category) []listing.PropertyListing {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buckets[category]
	if !ok {
		return nil
	}
	out := make([]listing.PropertyListing, len(b.listings))
	copy(out, b.listings)
	return out
}

// GetStats returns the number of listings held and how many are not flushed yet
func (d *Dataset) GetStats() (total, pending int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range d.buckets {
		total += len(b.listings)
		pending += len(b.listings) - b.flushed
	}
	return total, pending
}

// Flush writes listings not flushed yet to the saver, one call per category.
// A category whose save fails stays pending and is retried by the next flush.
func (d *Dataset) Flush(ctx context.Context, saver Saver) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	startTime := time.Now()
	logrus.Info("Starting flush of in-memory dataset...")

	written := 0
	var firstErr error

	for category, b := range d.buckets {
		pending := b.listings[b.flushed:]
		appendMode := b.append || b.flushed > 0
		if len(pending) == 0 && appendMode {
			continue
		}

		if err := saver.Save(ctx, pending, category, appendMode); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to flush %s listings: %w", category, err)
			}
			logrus.Warnf("Failed to flush %d %s listings: %v", len(pending), category, err)
			continue
		}

		b.flushed = len(b.listings)
		b.append = true
		written += len(pending)
	}

	logrus.Infof("Flush complete: %d listings written in %v", written, time.Since(startTime))
	return firstErr
}

// DropPending marks every listing not flushed yet as handled without writing it.
// The listings stay in memory and keep deduplicating later saves.
// Returns how many listings were dropped.
func (d *Dataset) DropPending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := 0
	for _, b := range d.buckets {
		dropped += len(b.listings) - b.flushed
		b.flushed = len(b.listings)
	}
	return dropped
}
