package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Response is the part of an HTTP response the fetcher needs
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport issues GET requests. An error means no HTTP response was
// received (connection refused, timeout, ...); any status code is a response.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*Response, error)
}

// CollyTransport performs requests through a shared colly collector.
// The collector is configured once and cloned per request, so workers
// share its HTTP backend without mutating it.
type CollyTransport struct {
	collector *colly.Collector
}

// NewCollyTransport creates a transport with the given user agent and request timeout
func NewCollyTransport(userAgent string, timeout time.Duration) *CollyTransport {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(timeout)

	return &CollyTransport{collector: c}
}

// Get fetches url synchronously
func (t *CollyTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	c := t.collector.Clone()
	c.Context = ctx

	var resp *Response
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{StatusCode: r.StatusCode, Body: r.Body}
	})

	// colly fills in defaults on the header it is given
	if err := c.Request(http.MethodGet, url, nil, nil, header.Clone()); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no response received for %s", url)
	}

	return resp, nil
}
