package metrics

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
)

// Outcome names counted as pages with listings and empty pages.
// Every other outcome name counts as a failed page.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
)

// Tracker accumulates counters for one process. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	start    time.Time
	outcomes map[string]int
	listings int
	retries  int
	batches  int

	fetchTotal time.Duration
	fetches    int
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		start:    time.Now(),
		outcomes: make(map[string]int),
	}
}

// RecordPage counts the final outcome of one page and the listings it yielded
func (t *Tracker) RecordPage(outcome string, listings int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[outcome]++
	t.listings += listings
}

// RecordRetry counts one retried request
func (t *Tracker) RecordRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retries++
}

// RecordBatch counts a completed batch
func (t *Tracker) RecordBatch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches++
}

// RecordFetchTime records how long one page took, retries included
func (t *Tracker) RecordFetchTime(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchTotal += d
	t.fetches++
}

// GetSnapshot returns the counters as exported metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() storage.Metrics {
	m := storage.Metrics{
		StartTime:        t.start,
		Outcomes:         maps.Clone(t.outcomes),
		Retries:          t.retries,
		BatchesCompleted: t.batches,
		ListingsFound:    t.listings,
		TotalFetchTimeMs: t.fetchTotal.Milliseconds(),
	}
	for outcome, n := range t.outcomes {
		switch outcome {
		case OutcomeSuccess:
			m.PagesFetched += n
		case OutcomeEmpty:
			m.PagesEmpty += n
		default:
			m.PagesFailed += n
		}
	}
	if t.fetches > 0 {
		m.AvgFetchTimeMs = m.TotalFetchTimeMs / int64(t.fetches)
	}
	return m
}

// WriteToFile exports metrics to a JSON file, stamped with the end time and reason
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	m := t.snapshot()
	t.mu.Unlock()

	m.EndTime = time.Now()
	m.TerminationReason = reason

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// LogProgress formats current metrics for periodic console updates.
// Failed pages are broken down by outcome.
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	m := t.snapshot()
	t.mu.Unlock()

	line := fmt.Sprintf("Pages: %d with listings, %d empty, %d failed | Retries: %d | Batches: %d | Listings: %d",
		m.PagesFetched, m.PagesEmpty, m.PagesFailed, m.Retries, m.BatchesCompleted, m.ListingsFound)

	var failures []string
	for _, outcome := range slices.Sorted(maps.Keys(m.Outcomes)) {
		if outcome == OutcomeSuccess || outcome == OutcomeEmpty {
			continue
		}
		failures = append(failures, fmt.Sprintf("%s=%d", outcome, m.Outcomes[outcome]))
	}
	if len(failures) > 0 {
		line += " (" + strings.Join(failures, ", ") + ")"
	}
	return line
}
