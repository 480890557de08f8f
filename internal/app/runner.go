// Package app wires configuration, transport, sinks and storage into crawl runs.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/config"
	"github.com/alvmarrod/dfimoveis-crawler/internal/crawler"
	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/memory"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/alvmarrod/dfimoveis-crawler/internal/report"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/sirupsen/logrus"
)

// Runner executes crawls for one category and persists what they find.
// Listings go to the CSV file and the in-memory dataset as batches complete;
// the dataset is flushed to the database after each property type.
type Runner struct {
	cfg       *config.Config
	store     *storage.Storage
	postgres  *storage.PostgresWriter
	transport crawler.Transport
	tracker   *metrics.Tracker
	csv       *storage.CSVWriter
	dataset   *memory.Dataset
	out       io.Writer

	// sleep is used for the pause between property types
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	current storage.Sink // database sink of the run in progress
}

// Option customizes a Runner
type Option func(*Runner)

// WithPostgres mirrors every flush into PostgreSQL
func WithPostgres(w *storage.PostgresWriter) Option {
	return func(r *Runner) { r.postgres = w }
}

// WithTransport replaces the default colly transport
func WithTransport(t crawler.Transport) Option {
	return func(r *Runner) { r.transport = t }
}

// WithOutput sets where crawl summaries are printed (nil disables them)
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// NewRunner creates a runner for cfg
func NewRunner(cfg *config.Config, store *storage.Storage, tracker *metrics.Tracker, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		csv:     storage.NewCSVWriter(cfg.OutputDir),
		dataset: memory.NewDataset(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.transport == nil {
		r.transport = crawler.NewCollyTransport(cfg.UserAgent, cfg.RequestTimeout())
	}
	return r
}

// Dataset returns the in-memory listings collected so far
func (r *Runner) Dataset() *memory.Dataset {
	return r.dataset
}

// CrawlType crawls one property type of the configured category.
// appendMode applies to the first write of the crawl; see crawler.Options.Append.
func (r *Runner) CrawlType(ctx context.Context, searchType string, appendMode bool) (*crawler.Result, error) {
	category := r.cfg.CategoryValue()

	prefix, err := crawler.PageURLPrefix(r.cfg.BaseURL, string(category), searchType)
	if err != nil {
		return nil, fmt.Errorf("failed to build page URL: %w", err)
	}

	runID, err := r.store.StartRun(ctx, category, searchType)
	if err != nil {
		return nil, err
	}

	dbSink := storage.MultiSink{storage.RunSink{Writer: r.store, RunID: runID}}
	if r.postgres != nil {
		dbSink = append(dbSink, storage.RunSink{Writer: r.postgres, RunID: runID})
	}
	r.setCurrent(dbSink)

	logrus.WithFields(logrus.Fields{
		"run":      runID,
		"category": category,
		"type":     searchType,
	}).Infof("Crawling %s, writing %s", prefix+"N", r.cfg.OutputFile())

	header := http.Header{}
	header.Set("Accept", "text/html,application/xhtml+xml")
	header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	backoff := crawler.DefaultBackoff()
	backoff.Base = r.cfg.BackoffBase()
	backoff.Factor = r.cfg.BackoffFactor

	fetcher := crawler.NewFetcher(r.transport, crawler.FetcherOptions{
		PageURLPrefix: prefix,
		SearchType:    searchType,
		Header:        header,
		MaxRetries:    r.cfg.MaxRetries,
		Backoff:       backoff,
	}, r.tracker)

	controller := crawler.NewController(
		crawler.NewScheduler(fetcher, r.cfg.Workers, r.tracker),
		storage.MultiSink{r.csv, r.dataset},
		crawler.Options{
			Category:         category,
			MaxPages:         r.cfg.MaxPages,
			BatchSize:        r.cfg.BatchSize,
			BatchDelay:       r.cfg.BatchDelay(),
			BatchDelayJitter: r.cfg.BatchDelayJitter(),
			EmptyThreshold:   r.cfg.ConsecutiveEmptyThreshold,
			SaveEachBatch:    r.cfg.SaveEachBatch,
			Append:           appendMode,
		},
		r.tracker,
	)

	result := controller.Crawl(ctx)

	// persistence must survive an interrupt of the crawl itself
	saveCtx := context.WithoutCancel(ctx)
	if err := r.dataset.Flush(saveCtx, dbSink); err != nil {
		// pending listings belong to this run and must not leak into the next one
		dropped := r.dataset.DropPending()
		logrus.Errorf("Failed to flush listings of run %d, %d listings not stored in the database: %v", runID, dropped, err)
	} else if stored, err := r.store.CountListings(saveCtx, category); err == nil {
		total, _ := r.dataset.GetStats()
		logrus.WithFields(logrus.Fields{
			"run":      runID,
			"category": category,
			"held":     total,
		}).Infof("Database holds %d %s listings", stored, category)
	}
	if err := r.store.FinishRun(saveCtx, runID, result.Reason, result.Pages, len(result.Listings)); err != nil {
		logrus.Errorf("Failed to record run %d: %v", runID, err)
	}

	if r.out != nil {
		report.Summary(r.out, category, searchType, result, r.tracker.GetSnapshot())
	}

	return result, nil
}

// CrawlAll crawls every property type of the category in turn, pausing between types.
// Stops early when ctx is cancelled; results of finished types are returned.
func (r *Runner) CrawlAll(ctx context.Context) ([]*crawler.Result, error) {
	var results []*crawler.Result

	for i, searchType := range listing.PropertyTypes {
		if i > 0 {
			logrus.Infof("Pausing %v before next property type", r.cfg.TypePause())
			if err := r.sleep(ctx, r.cfg.TypePause()); err != nil {
				break
			}
		}

		// only the first type may replace earlier output
		result, err := r.CrawlType(ctx, searchType, r.cfg.Append || i > 0)
		if err != nil {
			return results, fmt.Errorf("crawl of %s failed: %w", searchType, err)
		}
		results = append(results, result)

		if result.Reason == crawler.ReasonCancelled {
			break
		}
	}

	if r.out != nil {
		category := r.cfg.CategoryValue()
		report.Totals(r.out, category, r.dataset.Listings(category))
	}

	return results, nil
}

// EmergencyFlush writes whatever the dataset still holds to the database of the current run
func (r *Runner) EmergencyFlush(ctx context.Context) error {
	r.mu.Lock()
	sink := r.current
	r.mu.Unlock()

	if sink == nil {
		return nil
	}
	return r.dataset.Flush(ctx, sink)
}

func (r *Runner) setCurrent(s storage.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = s
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
