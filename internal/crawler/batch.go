package crawler

import (
	"context"
	"sync"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultEmptyThreshold is the number of consecutive empty pages that ends a crawl
const DefaultEmptyThreshold = 2

// EmptyStreak counts consecutive empty pages across batches, in page order.
// Outcomes may arrive in any order; each is held until every lower page has
// been recorded, so a run of empty pages is only counted when contiguous.
// It is owned by the controller and shared with each batch by handle.
type EmptyStreak struct {
	mu        sync.Mutex
	count     int
	threshold int

	next    int // lowest page not folded yet
	pending map[int]OutcomeKind
	// empty pages recorded but not folded yet
	pendingEmpty int
}

// NewEmptyStreak creates a streak counter. Thresholds below 1 use the default.
func NewEmptyStreak(threshold int) *EmptyStreak {
	if threshold < 1 {
		threshold = DefaultEmptyThreshold
	}
	return &EmptyStreak{threshold: threshold, pending: make(map[int]OutcomeKind)}
}

// begin moves the fold cursor to startPage unless it is already past it
func (s *EmptyStreak) begin(startPage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= startPage {
		return
	}
	for page, kind := range s.pending {
		if page < startPage {
			if kind == EmptySuccess {
				s.pendingEmpty--
			}
			delete(s.pending, page)
		}
	}
	s.next = startPage
	s.fold()
}

// Record stores the outcome of page. It returns true, with the page that
// completed the run, once the threshold of contiguous empty pages is reached.
// Pages with listings end a run; failed pages neither extend nor end it.
func (s *EmptyStreak) Record(page int, kind OutcomeKind) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if page < s.next {
		return 0, false
	}
	s.pending[page] = kind
	if kind == EmptySuccess {
		s.pendingEmpty++
	}
	return s.fold()
}

func (s *EmptyStreak) fold() (int, bool) {
	var (
		reachedAt int
		reached   bool
	)
	for {
		kind, ok := s.pending[s.next]
		if !ok {
			return reachedAt, reached
		}
		delete(s.pending, s.next)

		switch kind {
		case Success:
			s.count = 0
		case EmptySuccess:
			s.pendingEmpty--
			s.count++
			if s.count >= s.threshold && !reached {
				reachedAt, reached = s.next, true
			}
		}
		s.next++
	}
}

// Open reports whether a run of empty pages may be in progress
func (s *EmptyStreak) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count > 0 || s.pendingEmpty > 0
}

// Count returns the length of the current run
func (s *EmptyStreak) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// BatchResult summarizes one batch of pages
type BatchResult struct {
	// Listings are in completion order, not page order
	Listings   []listing.PropertyListing
	EmptyCount int
	Failed     int
	Dispatched int
	// LastPage is the highest page dispatched, 0 when nothing was dispatched
	LastPage  int
	Exhausted bool
}

// AllFailed reports whether every dispatched page ended in a failure
func (r BatchResult) AllFailed() bool {
	return r.Dispatched > 0 && r.Failed == r.Dispatched
}

// Scheduler runs batches of page fetches on a bounded pool of workers
type Scheduler struct {
	fetcher PageFetcher
	workers int
	tracker *metrics.Tracker
}

// NewScheduler creates a scheduler with the given worker count (minimum 1)
func NewScheduler(fetcher PageFetcher, workers int, tracker *metrics.Tracker) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{fetcher: fetcher, workers: workers, tracker: tracker}
}

// RunBatch fetches pages startPage..startPage+batchSize-1 with at most
// `workers` fetches in flight. Each outcome is folded into the result before
// its worker takes the next page. While a run of empty pages is open, pages
// are dispatched one at a time so the run settles before anything past it is
// requested. Once the streak reaches its threshold no further pages are
// dispatched; fetches already in flight complete.
func (s *Scheduler) RunBatch(ctx context.Context, startPage, batchSize int, streak *EmptyStreak) BatchResult {
	var (
		mu       sync.Mutex
		result   BatchResult
		inFlight int
	)
	if batchSize < 1 {
		return result
	}
	cond := sync.NewCond(&mu)

	queue := NewPageQueue(startPage, batchSize)
	workers := min(s.workers, batchSize)
	streak.begin(startPage)

	dispatch := func() (int, bool) {
		mu.Lock()
		defer mu.Unlock()

		for inFlight > 0 && streak.Open() && queue.Len() > 0 && ctx.Err() == nil {
			cond.Wait()
		}
		if ctx.Err() != nil {
			return 0, false
		}

		page, ok := queue.Pop()
		if !ok {
			return 0, false
		}
		inFlight++
		result.Dispatched++
		result.LastPage = max(result.LastPage, page)
		return page, true
	}

	record := func(out PageOutcome) {
		mu.Lock()
		defer mu.Unlock()
		defer cond.Broadcast()
		inFlight--

		switch out.Kind {
		case Success:
			result.Listings = append(result.Listings, out.Listings...)
			s.tracker.RecordPage(out.Kind.String(), len(out.Listings))

		case EmptySuccess:
			result.EmptyCount++
			s.tracker.RecordPage(out.Kind.String(), 0)

		default:
			result.Failed++
			if ctx.Err() != nil {
				logrus.Debugf("Page %d abandoned: %v", out.Page, out.Err)
				break
			}
			s.tracker.RecordPage(out.Kind.String(), 0)
			logrus.WithFields(logrus.Fields{
				"page":     out.Page,
				"outcome":  out.Kind.String(),
				"status":   out.StatusCode,
				"attempts": out.Attempts,
			}).Warnf("Page %d skipped", out.Page)
		}

		if endPage, reached := streak.Record(out.Page, out.Kind); reached && !result.Exhausted {
			result.Exhausted = true
			dropped := queue.Stop()
			logrus.Infof("Reached %d consecutive empty pages at page %d, %d pages not dispatched", streak.Count(), endPage, dropped)
		}
	}

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		id := i + 1
		g.Go(func() error {
			for {
				page, ok := dispatch()
				if !ok {
					return nil
				}

				logrus.Debugf("Worker %d: fetching page %d", id, page)
				record(s.fetcher.Fetch(ctx, page))
			}
		})
	}
	_ = g.Wait()

	return result
}
