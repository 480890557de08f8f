package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/config"
	"github.com/alvmarrod/dfimoveis-crawler/internal/crawler"
	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsPage(page int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 2; i++ {
		fmt.Fprintf(&b, `<div class="new-info">
  <h2 class="new-title phrase">Casa %d-%d</h2>
  <h3 class="new-desc phrase">Casa à Venda</h3>
  <div class="new-price"><span>R$ %d.000</span></div>
  <span>200 m²</span>
  <span>3 quartos</span>
</div>`, page, i, 500+page)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// newSite serves `pages` pages of two listings for the casa type and nothing for other types
func newSite(t *testing.T, pages int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("pagina"))
		if strings.HasSuffix(r.URL.Path, "/casa") && page >= 1 && page <= pages {
			_, _ = io.WriteString(w, resultsPage(page))
			return
		}
		_, _ = io.WriteString(w, "<html><body><p>Nenhum resultado</p></body></html>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		BaseURL:                   baseURL + "/{category}/df/todos/{property_type}?pagina=",
		Category:                  "venda",
		PropertyType:              "casa",
		UserAgent:                 "dfcrawl-test",
		Workers:                   2,
		BatchSize:                 2,
		MaxRetries:                1,
		BackoffBaseMs:             1,
		BackoffFactor:             2,
		ConsecutiveEmptyThreshold: 2,
		RequestTimeoutMs:          5000,
		SaveEachBatch:             true,
		Append:                    false,
		OutputDir:                 filepath.Join(dir, "dataset"),
		DBPath:                    filepath.Join(dir, "listings.db"),
	}
}

func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := NewRunner(cfg, store, metrics.NewTracker(), WithOutput(io.Discard))
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r, store
}

func TestRunner_CrawlType(t *testing.T) {
	ctx := context.Background()
	srv := newSite(t, 3, nil)
	cfg := testConfig(t, srv.URL)
	r, store := newTestRunner(t, cfg)

	res, err := r.CrawlType(ctx, "casa", cfg.Append)
	require.NoError(t, err)

	assert.Equal(t, crawler.ReasonEmptyExhausted, res.Reason)
	assert.Len(t, res.Listings, 6)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "casa", runs[0].PropertyType)
	assert.Equal(t, crawler.ReasonEmptyExhausted, runs[0].Reason)
	assert.Equal(t, 6, runs[0].Listings)
	assert.NotNil(t, runs[0].FinishedAt)

	stored, err := store.ListListings(ctx, runs[0].RunID)
	require.NoError(t, err)
	require.Len(t, stored, 6)
	price, ok := stored[0].Price.Value()
	require.True(t, ok)
	assert.Equal(t, 501000.0, price)

	csvPath := filepath.Join(cfg.OutputDir, storage.CSVFileName(listing.Sale))
	assert.FileExists(t, csvPath)

	total, pending := r.Dataset().GetStats()
	assert.Equal(t, 6, total)
	assert.Equal(t, 0, pending)
	assert.NoError(t, r.EmergencyFlush(ctx))
}

func TestRunner_FailedFlushDoesNotCarryIntoNextRun(t *testing.T) {
	ctx := context.Background()
	srv := newSite(t, 1, nil)
	cfg := testConfig(t, srv.URL)
	r, store := newTestRunner(t, cfg)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec("DROP TABLE listings")
	require.NoError(t, err)

	res, err := r.CrawlType(ctx, "casa", false)
	require.NoError(t, err)
	assert.Len(t, res.Listings, 2)

	total, pending := r.Dataset().GetStats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, pending)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Listings)
}

func TestRunner_CrawlTypeRejectsBadTemplate(t *testing.T) {
	cfg := testConfig(t, "not-a-url")
	r, _ := newTestRunner(t, cfg)

	_, err := r.CrawlType(context.Background(), "casa", false)
	assert.Error(t, err)
}

func TestRunner_CrawlAll(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := newSite(t, 1, &hits)
	cfg := testConfig(t, srv.URL)
	r, store := newTestRunner(t, cfg)

	var pauses int
	r.sleep = func(context.Context, time.Duration) error {
		pauses++
		return nil
	}

	results, err := r.CrawlAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, len(listing.PropertyTypes))
	assert.Equal(t, len(listing.PropertyTypes)-1, pauses)

	runs, err := store.ListRuns(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, runs, len(listing.PropertyTypes))

	n, err := store.CountListings(ctx, listing.Sale)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Greater(t, hits.Load(), int32(2*len(listing.PropertyTypes)-1))
}

func TestRunner_CrawlAllStopsWhenCancelled(t *testing.T) {
	srv := newSite(t, 1, nil)
	cfg := testConfig(t, srv.URL)
	r, _ := newTestRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	results, err := r.CrawlAll(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
