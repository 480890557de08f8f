package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/dom"
	"github.com/alvmarrod/dfimoveis-crawler/internal/extract"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRetries bounds the retries of a single page
const DefaultMaxRetries = 3

// PageFetcher fetches and classifies a single results page
type PageFetcher interface {
	Fetch(ctx context.Context, page int) PageOutcome
}

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	// PageURLPrefix is the results URL without the page number
	PageURLPrefix string
	// SearchType is the property-type segment requested, used as default type
	SearchType string
	Header     http.Header
	MaxRetries int
	Backoff    Backoff
}

// Fetcher fetches one page with bounded retries and exponential backoff
type Fetcher struct {
	transport  Transport
	prefix     string
	searchType string
	header     http.Header
	maxRetries int
	backoff    Backoff
	tracker    *metrics.Tracker
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a new page fetcher
func NewFetcher(transport Transport, opts FetcherOptions, tracker *metrics.Tracker) *Fetcher {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Header == nil {
		opts.Header = http.Header{}
	}

	return &Fetcher{
		transport:  transport,
		prefix:     opts.PageURLPrefix,
		searchType: opts.SearchType,
		header:     opts.Header,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		tracker:    tracker,
		sleep:      sleepContext,
	}
}

// Fetch retrieves one page. It never returns an error: every result,
// including giving up, is reported as a PageOutcome.
func (f *Fetcher) Fetch(ctx context.Context, page int) PageOutcome {
	url := PageURL(f.prefix, page)
	log := logrus.WithFields(logrus.Fields{"page": page, "url": url})
	out := PageOutcome{Page: page}

	for retry := 0; retry <= f.maxRetries; retry++ {
		if retry > 0 {
			wait := f.backoff.Wait(retry)
			log.WithField("retry", retry).Warnf("Retry #%d for page %d after %s - waiting %v", retry, page, out.Kind, wait.Round(time.Millisecond))
			f.tracker.RecordRetry()

			if err := f.sleep(ctx, wait); err != nil {
				out.Err = err
				return out
			}
		}

		out.Attempts++
		start := time.Now()
		resp, err := f.transport.Get(ctx, url, f.header)
		f.tracker.RecordFetchTime(time.Since(start))

		if err != nil {
			out.Kind, out.StatusCode, out.Err = ConnectionFailure, 0, err
			if ctx.Err() != nil {
				out.Err = ctx.Err()
				return out
			}
			log.Warnf("Connection error on page %d: %v", page, err)
			continue
		}

		out.StatusCode = resp.StatusCode
		out.Err = nil

		switch code := resp.StatusCode; {
		case code >= 200 && code < 300:
			doc, err := dom.Parse(resp.Body)
			if err != nil {
				out.Kind, out.Err = ConnectionFailure, err
				log.Warnf("Unreadable body on page %d: %v", page, err)
				continue
			}
			out.Listings = extract.Page(doc, f.searchType, page)
			if len(out.Listings) == 0 {
				log.Infof("Page %d has no listings", page)
				out.Kind = EmptySuccess
				return out
			}
			out.Kind = Success
			return out

		case code == http.StatusTooManyRequests:
			log.Warnf("Rate limited on page %d", page)
			out.Kind = RateLimited

		case code >= 500:
			log.Warnf("Server error on page %d (status %d)", page, code)
			out.Kind = ServerError

		default:
			// 4xx other than 429, and statuses left over after redirects
			log.Errorf("Client error on page %d (status %d), not retrying", page, code)
			out.Kind = ClientError
			return out
		}
	}

	log.Errorf("Max retries reached for page %d (last: %s)", page, out.Kind)
	out.Kind = RetriesExhausted
	return out
}
