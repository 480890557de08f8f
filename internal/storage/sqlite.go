package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		run_id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		property_type TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		reason TEXT NOT NULL DEFAULT '',
		pages INTEGER NOT NULL DEFAULT 0,
		listings INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS listings (
		listing_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		search_type TEXT NOT NULL,
		page INTEGER NOT NULL,
		position INTEGER NOT NULL,
		description TEXT,
		address TEXT NOT NULL DEFAULT '',
		property_type TEXT NOT NULL,
		price_kind TEXT NOT NULL,
		price REAL,
		price_raw TEXT,
		size_kind TEXT NOT NULL,
		size REAL,
		size_raw TEXT,
		bedrooms_kind TEXT NOT NULL,
		bedrooms INTEGER,
		bedrooms_raw TEXT,
		bathrooms TEXT NOT NULL DEFAULT '',
		parking_kind TEXT NOT NULL,
		parking INTEGER,
		parking_raw TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES crawl_runs(run_id),
		UNIQUE(run_id, search_type, page, position)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_run ON listings(run_id);
	CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartRun records the start of a crawl and returns its run_id
func (s *Storage) StartRun(ctx context.Context, category listing.Category, propertyType string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_runs (category, property_type, started_at)
		VALUES (?, ?, ?)
	`, string(category), propertyType, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve run_id: %w", err)
	}

	return runID, nil
}

// FinishRun stores the outcome of a crawl
func (s *Storage) FinishRun(ctx context.Context, runID int64, reason string, pages, listings int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawl_runs
		SET finished_at = ?, reason = ?, pages = ?, listings = ?
		WHERE run_id = ?
	`, time.Now().UTC(), reason, pages, listings, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}
	return nil
}

// GetRun retrieves a run by id, returns nil if not found
func (s *Storage) GetRun(ctx context.Context, runID int64) (*CrawlRun, error) {
	var run CrawlRun
	var finished sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, category, property_type, started_at, finished_at, reason, pages, listings
		FROM crawl_runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.Category, &run.PropertyType, &run.StartedAt, &finished, &run.Reason, &run.Pages, &run.Listings)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// ListRuns returns the most recent runs first, at most limit of them
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]CrawlRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, category, property_type, started_at, finished_at, reason, pages, listings
		FROM crawl_runs
		ORDER BY run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var run CrawlRun
		var finished sql.NullTime
		if err := rows.Scan(&run.RunID, &run.Category, &run.PropertyType, &run.StartedAt, &finished, &run.Reason, &run.Pages, &run.Listings); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveRun inserts listings for a run, skipping any already stored for it.
// Without appendMode, listings of the category left by earlier runs are removed first.
func (s *Storage) SaveRun(ctx context.Context, runID int64, listings []listing.PropertyListing, category listing.Category, appendMode bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if !appendMode {
		if _, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE category = ? AND run_id <> ?", string(category), runID); err != nil {
			return fmt.Errorf("failed to clear listings: %w", err)
		}
	}

	if len(listings) == 0 {
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (
			run_id, category, search_type, page, position, description, address, property_type,
			price_kind, price, price_raw, size_kind, size, size_raw,
			bedrooms_kind, bedrooms, bedrooms_raw, bathrooms,
			parking_kind, parking, parking_raw
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, search_type, page, position) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		priceKind, price, priceRaw := fieldColumns(l.Price)
		sizeKind, size, sizeRaw := fieldColumns(l.Size)
		bedKind, bed, bedRaw := fieldColumns(l.Bedrooms)
		parkKind, park, parkRaw := fieldColumns(l.ParkingSpaces)

		if _, err := stmt.ExecContext(ctx,
			runID, string(category), l.SearchType, l.Page, l.Position, l.Description, l.Address, l.PropertyType,
			priceKind, price, priceRaw, sizeKind, size, sizeRaw,
			bedKind, bed, bedRaw, l.Bathrooms,
			parkKind, park, parkRaw,
		); err != nil {
			return fmt.Errorf("failed to insert listing %s: %w", l.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit listings: %w", err)
	}
	return nil
}

// ListListings returns the listings stored for a run in page order
func (s *Storage) ListListings(ctx context.Context, runID int64) ([]listing.PropertyListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT search_type, page, position, description, address, property_type,
			price_kind, price, price_raw, size_kind, size, size_raw,
			bedrooms_kind, bedrooms, bedrooms_raw, bathrooms,
			parking_kind, parking, parking_raw
		FROM listings
		WHERE run_id = ?
		ORDER BY search_type, page, position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []listing.PropertyListing
	for rows.Next() {
		var (
			l                                      listing.PropertyListing
			description                            sql.NullString
			priceKind, sizeKind, bedKind, parkKind string
			price, size                            sql.Null[float64]
			bed, park                              sql.Null[int]
			priceRaw, sizeRaw, bedRaw, parkRaw     sql.NullString
		)
		if err := rows.Scan(
			&l.SearchType, &l.Page, &l.Position, &description, &l.Address, &l.PropertyType,
			&priceKind, &price, &priceRaw, &sizeKind, &size, &sizeRaw,
			&bedKind, &bed, &bedRaw, &l.Bathrooms,
			&parkKind, &park, &parkRaw,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}

		if description.Valid {
			l.Description = &description.String
		}
		l.Price = fieldFromColumns(priceKind, price, priceRaw)
		l.Size = fieldFromColumns(sizeKind, size, sizeRaw)
		l.Bedrooms = fieldFromColumns(bedKind, bed, bedRaw)
		l.ParkingSpaces = fieldFromColumns(parkKind, park, parkRaw)

		out = append(out, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return out, nil
}

// CountListings returns how many listings are stored for a category
func (s *Storage) CountListings(ctx context.Context, category listing.Category) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings WHERE category = ?", string(category)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
