package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriter_WritesHeaderAndRows(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dataset")
	w := NewCSVWriter(dir)

	require.NoError(t, w.Save(context.Background(), sampleListings(), listing.Sale, false))

	path := filepath.Join(dir, "imoveis_df_venda.csv")
	assert.Equal(t, path, w.Path(listing.Sale))

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"SQN 310 Apartamento reformado", "", "apartamento", "1234.56", "64",
		"2", "", "1", "imoveis", "1", "0",
	}, records[1])
	// unset price and raw bedrooms
	assert.Equal(t, "", records[2][3])
	assert.Equal(t, "Quartos", records[2][5])
}

func TestCSVWriter_AppendSkipsRepeats(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)
	all := sampleListings()

	require.NoError(t, w.Save(context.Background(), all[:2], listing.Rent, false))
	require.NoError(t, w.Save(context.Background(), all, listing.Rent, true))

	records := readCSV(t, w.Path(listing.Rent))
	assert.Len(t, records, 4)
}

func TestCSVWriter_TruncateResets(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)
	all := sampleListings()

	require.NoError(t, w.Save(context.Background(), all, listing.Sale, false))
	require.NoError(t, w.Save(context.Background(), all[:1], listing.Sale, false))

	records := readCSV(t, w.Path(listing.Sale))
	assert.Len(t, records, 2)
}

func TestCSVWriter_AppendToExistingFileKeepsSingleHeader(t *testing.T) {
	dir := t.TempDir()
	all := sampleListings()

	require.NoError(t, NewCSVWriter(dir).Save(context.Background(), all[:1], listing.Sale, true))
	require.NoError(t, NewCSVWriter(dir).Save(context.Background(), all[1:], listing.Sale, true))

	records := readCSV(t, filepath.Join(dir, CSVFileName(listing.Sale)))
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.NotEqual(t, csvHeader, records[2])
}

func TestCSVWriter_EmptyAppendCreatesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewCSVWriter(dir)

	require.NoError(t, w.Save(context.Background(), nil, listing.Sale, true))

	_, err := os.Stat(w.Path(listing.Sale))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type failingSink struct{ calls int }

func (f *failingSink) Save(context.Context, []listing.PropertyListing, listing.Category, bool) error {
	f.calls++
	return errors.New("unavailable")
}

func TestMultiSink_ContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	bad := &failingSink{}
	csvSink := NewCSVWriter(dir)

	err := MultiSink{bad, csvSink}.Save(context.Background(), sampleListings(), listing.Sale, false)

	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, readCSV(t, csvSink.Path(listing.Sale)), 4)
}
