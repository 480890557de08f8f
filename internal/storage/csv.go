package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/sirupsen/logrus"
)

// csvHeader lists the output columns; provenance columns come last
var csvHeader = []string{
	"description", "address", "property_type", "price", "size",
	"bedrooms", "bathrooms", "parking_spaces",
	"search_type", "page", "position",
}

// CSVWriter writes listings to one CSV file per category under a directory.
// Listings already written by this process are skipped.
type CSVWriter struct {
	dir  string
	mu   sync.Mutex
	seen map[string]map[string]bool // file path -> listing keys
}

// NewCSVWriter creates a writer for the given output directory
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir, seen: make(map[string]map[string]bool)}
}

// Path returns the output file of a category
func (w *CSVWriter) Path(category listing.Category) string {
	return filepath.Join(w.dir, CSVFileName(category))
}

// CSVFileName returns the file name used for a category
func CSVFileName(category listing.Category) string {
	return fmt.Sprintf("imoveis_df_%s.csv", category)
}

// Save appends listings to the category file, or truncates it first when appendMode is false.
// The header is written whenever the file starts empty.
func (w *CSVWriter) Save(_ context.Context, listings []listing.PropertyListing, category listing.Category, appendMode bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.Path(category)
	if !appendMode || w.seen[path] == nil {
		w.seen[path] = make(map[string]bool)
	}
	seen := w.seen[path]

	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		if seen[l.Key()] {
			continue
		}
		seen[l.Key()] = true
		rows = append(rows, csvRow(l))
	}

	if appendMode && len(rows) == 0 {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	logrus.Infof("Saved %d listings to %s", len(rows), path)
	return nil
}

func csvRow(l listing.PropertyListing) []string {
	return []string{
		l.DescriptionText(),
		l.Address,
		l.PropertyType,
		l.Price.String(),
		l.Size.String(),
		l.Bedrooms.String(),
		l.Bathrooms,
		l.ParkingSpaces.String(),
		l.SearchType,
		strconv.Itoa(l.Page),
		strconv.Itoa(l.Position),
	}
}
