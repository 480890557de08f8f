package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/crawler"
	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestTypeCounts(t *testing.T) {
	listings := []listing.PropertyListing{
		{PropertyType: "casa"},
		{PropertyType: "apartamento"},
		{PropertyType: "casa"},
		{PropertyType: "lote"},
	}

	assert.Equal(t, []TypeCount{
		{Type: "casa", Count: 2},
		{Type: "apartamento", Count: 1},
		{Type: "lote", Count: 1},
	}, TypeCounts(listings))

	assert.Empty(t, TypeCounts(nil))
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	res := &crawler.Result{
		Listings: []listing.PropertyListing{{PropertyType: "kitnet"}, {PropertyType: "kitnet"}},
		Pages:    4,
		Batches:  1,
		Reason:   crawler.ReasonEmptyExhausted,
	}

	Summary(&buf, listing.Rent, "kitnet", res, storage.Metrics{PagesFetched: 2, PagesEmpty: 2, AvgFetchTimeMs: 350})

	out := buf.String()
	assert.Contains(t, out, "aluguel/kitnet")
	assert.Contains(t, out, "empty_exhausted")
	assert.Contains(t, out, "350ms")
	assert.Contains(t, out, "kitnet")
}

func TestRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)

	var buf bytes.Buffer
	Runs(&buf, []storage.CrawlRun{
		{RunID: 2, Category: "venda", PropertyType: "casa", StartedAt: started},
		{RunID: 1, Category: "venda", PropertyType: "imoveis", StartedAt: started, FinishedAt: &finished, Reason: "max_pages", Pages: 10, Listings: 300},
	})

	out := buf.String()
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "max_pages")
	assert.Contains(t, out, "300")
}

func TestTotals(t *testing.T) {
	var buf bytes.Buffer
	Totals(&buf, listing.Sale, []listing.PropertyListing{
		{PropertyType: "casa"}, {PropertyType: "lote"}, {PropertyType: "casa"},
	})

	out := buf.String()
	assert.Contains(t, out, "Listings for venda")
	assert.Contains(t, out, "casa")
	assert.Contains(t, out, "3")
}

func TestRunDetail(t *testing.T) {
	desc := "Lote no Park Way"
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	RunDetail(&buf, storage.CrawlRun{RunID: 7, Category: "venda", PropertyType: "lote", StartedAt: started}, []listing.PropertyListing{
		{Description: &desc, PropertyType: "lote", Price: listing.Unset[float64](), Size: listing.Number(2500.5), Page: 1},
		{PropertyType: "lote", Bedrooms: listing.Raw[int]("Quartos"), Page: 2, Position: 3},
	})

	out := buf.String()
	assert.Contains(t, out, "Lote no Park Way")
	assert.Contains(t, out, "sob consulta")
	assert.Contains(t, out, "2500.5")
	assert.Contains(t, out, "Quartos")
	assert.Contains(t, out, " - ")
}
