package crawler

import (
	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
)

// OutcomeKind classifies the result of fetching one page
type OutcomeKind int

const (
	// Success means the page returned at least one listing
	Success OutcomeKind = iota
	// EmptySuccess means the page loaded but had no listings, usually the end of pagination
	EmptySuccess
	// RateLimited means the last response was 429
	RateLimited
	// ServerError means the last response was 5xx
	ServerError
	// ClientError means a non-retryable status (4xx other than 429)
	ClientError
	// ConnectionFailure means the last attempt failed below HTTP
	ConnectionFailure
	// RetriesExhausted means every allowed attempt failed with a retryable error
	RetriesExhausted
)

// String returns the outcome name used in logs
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return metrics.OutcomeSuccess
	case EmptySuccess:
		return metrics.OutcomeEmpty
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case ConnectionFailure:
		return "connection_failure"
	case RetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// PageOutcome is the classified result of one Fetch call. It is consumed by
// the scheduler as soon as it is produced and never persisted.
type PageOutcome struct {
	Page     int
	Kind     OutcomeKind
	Listings []listing.PropertyListing

	// StatusCode is the last HTTP status seen, 0 when no response arrived
	StatusCode int
	// Attempts counts requests issued for the page
	Attempts int
	// Err holds the last transport or context error, if any
	Err error
}
