package crawler

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Termination reasons reported in Result.Reason
const (
	ReasonEmptyExhausted = "empty_exhausted"
	ReasonMaxPages       = "max_pages"
	ReasonCancelled      = "cancelled"
)

// Sink receives extracted listings. It is called after each batch when
// per-batch saving is on, and once at the end of the crawl with every
// listing found, so implementations must tolerate repeated records.
type Sink interface {
	Save(ctx context.Context, listings []listing.PropertyListing, category listing.Category, append bool) error
}

// Options controls the batch loop of a crawl
type Options struct {
	Category listing.Category
	// MaxPages bounds the crawl, 0 means unbounded
	MaxPages         int
	BatchSize        int
	BatchDelay       time.Duration
	BatchDelayJitter time.Duration
	EmptyThreshold   int
	SaveEachBatch    bool
	// Append applies to the first save of the crawl; later saves always append
	Append bool
}

// Result is what a crawl produced
type Result struct {
	Listings []listing.PropertyListing
	Pages    int
	Batches  int
	Reason   string
}

// Controller drives a crawl batch by batch until pagination is exhausted,
// the page limit is reached or the context is cancelled.
type Controller struct {
	scheduler *Scheduler
	sink      Sink
	opts      Options
	tracker   *metrics.Tracker

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64

	saved bool
}

// NewController creates a crawl controller. sink may be nil.
func NewController(scheduler *Scheduler, sink Sink, opts Options, tracker *metrics.Tracker) *Controller {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Controller{
		scheduler: scheduler,
		sink:      sink,
		opts:      opts,
		tracker:   tracker,
		sleep:     sleepContext,
		jitter:    rand.Float64,
	}
}

// Crawl runs the batch loop and returns every listing found.
// Cancellation stops dispatching; whatever was accumulated is still saved and returned.
func (c *Controller) Crawl(ctx context.Context) *Result {
	streak := NewEmptyStreak(c.opts.EmptyThreshold)
	result := &Result{}
	cursor := 1

	for {
		if ctx.Err() != nil {
			result.Reason = ReasonCancelled
			break
		}

		size := c.opts.BatchSize
		if c.opts.MaxPages > 0 {
			size = min(size, c.opts.MaxPages-cursor+1)
		}

		logrus.Infof("Starting batch %d: pages %d-%d", result.Batches+1, cursor, cursor+size-1)
		batch := c.scheduler.RunBatch(ctx, cursor, size, streak)
		cursor += size

		result.Batches++
		result.Pages += batch.Dispatched
		result.Listings = append(result.Listings, batch.Listings...)
		c.tracker.RecordBatch()

		logrus.WithFields(logrus.Fields{
			"batch":      result.Batches,
			"last_page":  batch.LastPage,
			"dispatched": batch.Dispatched,
			"empty":      batch.EmptyCount,
			"failed":     batch.Failed,
			"listings":   len(batch.Listings),
			"total":      len(result.Listings),
		}).Infof("Batch %d done: %d pages, %d empty, %d listings (total %d)",
			result.Batches, batch.Dispatched, batch.EmptyCount, len(batch.Listings), len(result.Listings))

		if batch.AllFailed() && ctx.Err() == nil {
			logrus.Warnf("Every page of batch %d failed, the site may be blocking requests", result.Batches)
		}

		if c.opts.SaveEachBatch && len(batch.Listings) > 0 {
			c.save(ctx, batch.Listings)
		}

		if batch.Exhausted {
			result.Reason = ReasonEmptyExhausted
			break
		}
		if ctx.Err() != nil {
			result.Reason = ReasonCancelled
			break
		}
		if c.opts.MaxPages > 0 && cursor > c.opts.MaxPages {
			result.Reason = ReasonMaxPages
			break
		}

		delay := c.batchDelay()
		logrus.Infof("Waiting %v before next batch", delay.Round(time.Millisecond))
		if err := c.sleep(ctx, delay); err != nil {
			result.Reason = ReasonCancelled
			break
		}
	}

	logrus.Infof("Crawl finished (%s): %d listings from %d pages in %d batches",
		result.Reason, len(result.Listings), result.Pages, result.Batches)

	// the final hand-off runs even after an interrupt
	c.save(context.WithoutCancel(ctx), result.Listings)

	return result
}

// save hands listings to the sink; failures are logged, never fatal
func (c *Controller) save(ctx context.Context, listings []listing.PropertyListing) {
	if c.sink == nil {
		return
	}

	appendMode := c.opts.Append || c.saved
	if err := c.sink.Save(ctx, listings, c.opts.Category, appendMode); err != nil {
		logrus.Errorf("Failed to save %d listings: %v", len(listings), err)
		return
	}
	c.saved = true
}

// batchDelay returns BatchDelay shifted by up to ±BatchDelayJitter, never negative
func (c *Controller) batchDelay() time.Duration {
	offset := (c.jitter()*2 - 1) * float64(c.opts.BatchDelayJitter)
	return max(c.opts.BatchDelay+time.Duration(offset), 0)
}
