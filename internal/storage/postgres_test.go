package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live database only when DFCRAWL_TEST_POSTGRES_DSN is set
func TestPostgresWriter_SaveRun(t *testing.T) {
	dsn := os.Getenv("DFCRAWL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DFCRAWL_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	w, err := NewPostgresWriter(ctx, dsn)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.EnsureSchema(ctx))

	runID := time.Now().UnixNano()
	all := sampleListings()
	require.NoError(t, w.SaveRun(ctx, runID, all, listing.Sale, true))
	require.NoError(t, w.SaveRun(ctx, runID, all, listing.Sale, true))

	var n int
	require.NoError(t, w.pool.QueryRow(ctx, "SELECT COUNT(*) FROM listings WHERE run_id = $1", runID).Scan(&n))
	assert.Equal(t, len(all), n)
}
