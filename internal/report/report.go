// Package report renders crawl results as console tables.
package report

import (
	"io"
	"sort"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/crawler"
	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary prints the outcome of one crawl with a per-type breakdown of its listings
func Summary(w io.Writer, category listing.Category, searchType string, res *crawler.Result, m storage.Metrics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Crawl %s/%s", category, searchType)

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Reason", res.Reason},
		{"Batches", res.Batches},
		{"Pages dispatched", res.Pages},
		{"Pages with listings", m.PagesFetched},
		{"Empty pages", m.PagesEmpty},
		{"Failed pages", m.PagesFailed},
		{"Retries", m.Retries},
		{"Avg fetch time", (time.Duration(m.AvgFetchTimeMs) * time.Millisecond).String()},
		{"Listings", len(res.Listings)},
	})

	counts := TypeCounts(res.Listings)
	if len(counts) > 0 {
		t.AppendSeparator()
		for _, c := range counts {
			t.AppendRow(table.Row{"  " + c.Type, c.Count})
		}
	}

	t.Render()
}

// TypeCount is the number of listings of one property type
type TypeCount struct {
	Type  string
	Count int
}

// TypeCounts groups listings by property type, most frequent first
func TypeCounts(listings []listing.PropertyListing) []TypeCount {
	byType := make(map[string]int)
	for _, l := range listings {
		byType[l.PropertyType]++
	}

	counts := make([]TypeCount, 0, len(byType))
	for typ, n := range byType {
		counts = append(counts, TypeCount{Type: typ, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Type < counts[j].Type
	})
	return counts
}

// Runs prints recorded crawl runs
func Runs(w io.Writer, runs []storage.CrawlRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Run", "Category", "Type", "Started", "Duration", "Reason", "Pages", "Listings"})
	for _, r := range runs {
		duration := "running"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			r.RunID,
			r.Category,
			r.PropertyType,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.Reason,
			r.Pages,
			r.Listings,
		})
	}

	t.Render()
}

// Totals prints the per-type breakdown of every listing held for a category
func Totals(w io.Writer, category listing.Category, listings []listing.PropertyListing) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Listings for %s", category)

	t.AppendHeader(table.Row{"Type", "Listings"})
	for _, c := range TypeCounts(listings) {
		t.AppendRow(table.Row{c.Type, c.Count})
	}
	t.AppendFooter(table.Row{"Total", len(listings)})

	t.Render()
}

// RunDetail prints one recorded run followed by the listings stored for it
func RunDetail(w io.Writer, run storage.CrawlRun, listings []listing.PropertyListing) {
	Runs(w, []storage.CrawlRun{run})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Page", "Pos", "Type", "Price", "Size", "Bedrooms", "Parking", "Description"})
	for _, l := range listings {
		t.AppendRow(table.Row{
			l.Page,
			l.Position,
			l.PropertyType,
			cell(l.Price),
			cell(l.Size),
			cell(l.Bedrooms),
			cell(l.ParkingSpaces),
			l.DescriptionText(),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Description", WidthMax: 48}})

	t.Render()
}

func cell[T int | float64](f listing.Field[T]) string {
	switch {
	case f.IsAbsent():
		return "-"
	case f.Kind() == listing.ExplicitlyUnset:
		return "sob consulta"
	default:
		return f.String()
	}
}
