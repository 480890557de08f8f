package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWriter mirrors crawled listings into PostgreSQL
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter connects to the database behind dsn
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{pool: pool}, nil
}

// Close releases the connection pool
func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

// EnsureSchema creates the listings table if needed
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT NOT NULL,
		category TEXT NOT NULL,
		search_type TEXT NOT NULL,
		page INTEGER NOT NULL,
		position INTEGER NOT NULL,
		description TEXT,
		address TEXT NOT NULL DEFAULT '',
		property_type TEXT NOT NULL,
		price_kind TEXT NOT NULL,
		price NUMERIC(14,2),
		price_raw TEXT,
		size_kind TEXT NOT NULL,
		size_m2 NUMERIC(12,2),
		size_raw TEXT,
		bedrooms_kind TEXT NOT NULL,
		bedrooms INTEGER,
		bedrooms_raw TEXT,
		bathrooms TEXT NOT NULL DEFAULT '',
		parking_kind TEXT NOT NULL,
		parking INTEGER,
		parking_raw TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (run_id, search_type, page, position)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category);
	CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);
	`

	if _, err := w.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// SaveRun inserts listings in one batch round trip, skipping rows already stored for the run.
// Without appendMode, rows of the category from other runs are deleted first.
func (w *PostgresWriter) SaveRun(ctx context.Context, runID int64, listings []listing.PropertyListing, category listing.Category, appendMode bool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	if !appendMode {
		batch.Queue("DELETE FROM listings WHERE category = $1 AND run_id <> $2", string(category), runID)
	}

	insertSQL := `
	INSERT INTO listings (
		run_id, category, search_type, page, position, description, address, property_type,
		price_kind, price, price_raw, size_kind, size_m2, size_raw,
		bedrooms_kind, bedrooms, bedrooms_raw, bathrooms,
		parking_kind, parking, parking_raw
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	ON CONFLICT (run_id, search_type, page, position) DO NOTHING;
	`

	for _, l := range listings {
		priceKind, price, priceRaw := fieldColumns(l.Price)
		sizeKind, size, sizeRaw := fieldColumns(l.Size)
		bedKind, bed, bedRaw := fieldColumns(l.Bedrooms)
		parkKind, park, parkRaw := fieldColumns(l.ParkingSpaces)

		batch.Queue(insertSQL,
			runID, string(category), l.SearchType, l.Page, l.Position, l.Description, l.Address, l.PropertyType,
			priceKind, price, priceRaw, sizeKind, size, sizeRaw,
			bedKind, bed, bedRaw, l.Bathrooms,
			parkKind, park, parkRaw,
		)
	}

	if batch.Len() == 0 {
		return nil
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert failed at statement %d: %w", i, err)
		}
	}

	return nil
}
