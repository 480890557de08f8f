package crawler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	listingPage = `<html><body>
<div class="new-info">
  <h2 class="new-title phrase">Casa no Lago Sul</h2>
  <h3 class="new-desc phrase">Casa à Venda</h3>
  <div class="new-price"><span>R$ 2.350.000</span></div>
  <span>450 m²</span>
  <span>4 quartos</span>
</div>
</body></html>`

	emptyPage = `<html><body><p>Nenhum imóvel encontrado</p></body></html>`

	testPrefix = "https://www.example.test/venda/df/todos/imoveis?pagina="
)

type step struct {
	status int
	body   string
	err    error
}

// stubTransport replays a script of responses; the last step repeats
type stubTransport struct {
	mu    sync.Mutex
	steps []step
	urls  []string
}

func (s *stubTransport) Get(_ context.Context, url string, _ http.Header) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := min(len(s.urls), len(s.steps)-1)
	s.urls = append(s.urls, url)

	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	return &Response{StatusCode: st.status, Body: []byte(st.body)}, nil
}

func (s *stubTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

func newTestFetcher(tr Transport, maxRetries int) (*Fetcher, *metrics.Tracker) {
	tracker := metrics.NewTracker()
	f := NewFetcher(tr, FetcherOptions{
		PageURLPrefix: testPrefix,
		SearchType:    "imoveis",
		MaxRetries:    maxRetries,
		Backoff: Backoff{
			Base:      10 * time.Millisecond,
			Factor:    2,
			JitterMin: 0.5,
			JitterMax: 1.5,
		},
	}, tracker)
	return f, tracker
}

func TestFetch_SuccessExtractsListings(t *testing.T) {
	tr := &stubTransport{steps: []step{{status: 200, body: listingPage}}}
	f, _ := newTestFetcher(tr, 3)

	out := f.Fetch(context.Background(), 3)

	assert.Equal(t, Success, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 200, out.StatusCode)
	require.Len(t, out.Listings, 1)
	assert.Equal(t, "casa", out.Listings[0].PropertyType)
	assert.Equal(t, 3, out.Listings[0].Page)
	assert.Equal(t, []string{testPrefix + "3"}, tr.urls)
}

func TestFetch_EmptyPage(t *testing.T) {
	tr := &stubTransport{steps: []step{{status: 200, body: emptyPage}}}
	f, _ := newTestFetcher(tr, 3)

	out := f.Fetch(context.Background(), 9)

	assert.Equal(t, EmptySuccess, out.Kind)
	assert.Empty(t, out.Listings)
	assert.Equal(t, 1, tr.calls())
}

func TestFetch_RateLimitedThenSuccess(t *testing.T) {
	tr := &stubTransport{steps: []step{
		{status: http.StatusTooManyRequests},
		{status: 200, body: listingPage},
	}}
	f, tracker := newTestFetcher(tr, 3)

	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return sleepContext(ctx, d)
	}

	start := time.Now()
	out := f.Fetch(context.Background(), 1)
	elapsed := time.Since(start)

	assert.Equal(t, Success, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	require.Len(t, waits, 1)

	// base * factor^1 * 0.5
	minWait := 10 * time.Millisecond
	assert.GreaterOrEqual(t, waits[0], minWait)
	assert.Less(t, waits[0], 30*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, minWait)
	assert.Equal(t, 1, tracker.GetSnapshot().Retries)
}

func TestFetch_ServerErrorsExhaustRetries(t *testing.T) {
	tr := &stubTransport{steps: []step{{status: http.StatusServiceUnavailable}}}
	f, tracker := newTestFetcher(tr, 3)
	f.sleep = func(context.Context, time.Duration) error { return nil }

	var out PageOutcome
	require.NotPanics(t, func() { out = f.Fetch(context.Background(), 2) })

	assert.Equal(t, RetriesExhausted, out.Kind)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, 4, tr.calls())
	assert.Equal(t, http.StatusServiceUnavailable, out.StatusCode)
	assert.Equal(t, 3, tracker.GetSnapshot().Retries)
}

func TestFetch_ClientErrorIsTerminal(t *testing.T) {
	tr := &stubTransport{steps: []step{{status: http.StatusNotFound}}}
	f, _ := newTestFetcher(tr, 3)
	f.sleep = func(context.Context, time.Duration) error {
		t.Fatal("client errors must not be retried")
		return nil
	}

	out := f.Fetch(context.Background(), 2)

	assert.Equal(t, ClientError, out.Kind)
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Equal(t, 1, out.Attempts)
}

func TestFetch_RedirectStatusIsTerminal(t *testing.T) {
	tr := &stubTransport{steps: []step{{status: http.StatusMovedPermanently}}}
	f, _ := newTestFetcher(tr, 3)

	out := f.Fetch(context.Background(), 2)

	assert.Equal(t, ClientError, out.Kind)
	assert.Equal(t, 1, tr.calls())
}

func TestFetch_ConnectionFailureRetries(t *testing.T) {
	tr := &stubTransport{steps: []step{
		{err: errors.New("connection refused")},
		{status: 200, body: listingPage},
	}}
	f, _ := newTestFetcher(tr, 3)
	f.sleep = func(context.Context, time.Duration) error { return nil }

	out := f.Fetch(context.Background(), 1)

	assert.Equal(t, Success, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	assert.NoError(t, out.Err)
}

func TestFetch_ConnectionFailuresExhaustRetries(t *testing.T) {
	tr := &stubTransport{steps: []step{{err: errors.New("timeout")}}}
	f, _ := newTestFetcher(tr, 1)
	f.sleep = func(context.Context, time.Duration) error { return nil }

	out := f.Fetch(context.Background(), 1)

	assert.Equal(t, RetriesExhausted, out.Kind)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 0, out.StatusCode)
	require.Error(t, out.Err)
	assert.True(t, strings.Contains(out.Err.Error(), "timeout"))
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	tr := &stubTransport{steps: []step{{status: http.StatusServiceUnavailable}}}
	f, _ := newTestFetcher(tr, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.Fetch(ctx, 1)

	assert.Equal(t, ServerError, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, out.Attempts)
}

func TestBackoff_Wait(t *testing.T) {
	b := DefaultBackoff()

	b.rand = func() float64 { return 0 }
	assert.Equal(t, 2*time.Second, b.Wait(1))
	assert.Equal(t, 4*time.Second, b.Wait(2))

	b.rand = func() float64 { return 0.5 }
	assert.Equal(t, 4*time.Second, b.Wait(1))
	assert.Equal(t, 16*time.Second, b.Wait(3))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
