package storage

import "time"

// CrawlRun records one crawl of a category and property type
type CrawlRun struct {
	RunID        int64
	Category     string
	PropertyType string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Reason       string
	Pages        int
	Listings     int
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	PagesFetched      int            `json:"pages_fetched"`
	PagesEmpty        int            `json:"pages_empty"`
	PagesFailed       int            `json:"pages_failed"`
	Outcomes          map[string]int `json:"outcomes"`
	Retries           int            `json:"retries"`
	BatchesCompleted  int            `json:"batches_completed"`
	ListingsFound     int            `json:"listings_found"`
	TotalFetchTimeMs  int64          `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64          `json:"avg_fetch_time_ms"`
	TerminationReason string         `json:"termination_reason"`
}
