package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"carwatch/models"
)

// PostgresWriter appends observations to the listings history table.
type PostgresWriter struct {
	db *sql.DB
}

// PriceHistoryPoint is one stored observation of a listing.
type PriceHistoryPoint struct {
	CreatedAt    time.Time
	PriceNumeric float64
	Status       models.Status
}

// ListingStats summarises the whole history table.
type ListingStats struct {
	DistinctListings int
	TotalRecords     int
	AveragePrice     float64
	MinPrice         float64
	MaxPrice         float64
}

// RecentListing is a row of the most recent observations.
type RecentListing struct {
	CarID        string
	FullName     string
	PriceDisplay string
	CityName     string
	Status       models.Status
	CreatedAt    time.Time
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id            SERIAL PRIMARY KEY,
			run_id        TEXT          NOT NULL DEFAULT '',
			car_id        TEXT          NOT NULL,
			source        VARCHAR(50)   NOT NULL DEFAULT '',
			full_name     TEXT          NOT NULL DEFAULT '',
			price_display TEXT          NOT NULL DEFAULT '',
			price_numeric NUMERIC(12,2) NOT NULL DEFAULT 0,
			model_year    TEXT          NOT NULL DEFAULT '',
			fipe_value    TEXT,
			fipe_source   TEXT,
			brand         TEXT,
			fipe_model    TEXT,
			fipe_year     TEXT,
			city_name     TEXT          NOT NULL DEFAULT '',
			listing_url   TEXT          NOT NULL DEFAULT '',
			status        VARCHAR(20)   NOT NULL,
			listing_date  TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_car_id     ON listings(car_id);
		CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_listings_status     ON listings(status);
	`)
	return err
}

// Ping checks the connection.
func (pw *PostgresWriter) Ping() error {
	return pw.db.Ping()
}

// Write batch-inserts observations. History is append-only.
func (pw *PostgresWriter) Write(observations []*models.Observation) error {
	const batchSize = 50
	for i := 0; i < len(observations); i += batchSize {
		end := i + batchSize
		if end > len(observations) {
			end = len(observations)
		}
		if err := pw.insertBatch(observations[i:end]); err != nil {
			return err
		}
	}
	return nil
}

const observationColumns = 16

func (pw *PostgresWriter) insertBatch(batch []*models.Observation) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*observationColumns)

	for _, o := range batch {
		if o == nil || o.Listing == nil {
			continue
		}
		base := len(valueStrings) * observationColumns
		placeholders := make([]string, observationColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs, observationArgs(o)...)
	}

	if len(valueStrings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (run_id, car_id, source, full_name, price_display, price_numeric, model_year,
			fipe_value, fipe_source, brand, fipe_model, fipe_year, city_name, listing_url, status, listing_date)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	if _, err := pw.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert batch: %w", err)
	}
	return nil
}

// observationArgs flattens o in the column order of insertBatch. FIPE
// columns are NULL when the listing has no valuation.
func observationArgs(o *models.Observation) []interface{} {
	l := o.Listing

	var fipeValue, fipeSource, brand, fipeModel, fipeYear sql.NullString
	if v := o.Valuation; v != nil {
		fipeValue = sql.NullString{String: v.Value, Valid: true}
		fipeSource = sql.NullString{String: v.SourceURL, Valid: true}
		brand = sql.NullString{String: v.BrandName, Valid: true}
		fipeModel = sql.NullString{String: v.ModelName, Valid: true}
		fipeYear = sql.NullString{String: v.YearLabel, Valid: true}
	} else if l.Brand != "" {
		brand = sql.NullString{String: l.Brand, Valid: true}
	}

	observedAt := o.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	return []interface{}{
		o.RunID, l.CarID, l.Source, l.FullName(), l.DisplayPrice, l.NumericPrice, l.ModelYear,
		fipeValue, fipeSource, brand, fipeModel, fipeYear,
		l.City, l.Link, string(o.Status), observedAt,
	}
}

// History returns the latest observations of one listing, newest first.
func (pw *PostgresWriter) History(carID string, limit int) ([]PriceHistoryPoint, error) {
	rows, err := pw.db.Query(`
		SELECT created_at, price_numeric, status
		FROM listings
		WHERE car_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, carID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: history: %w", err)
	}
	defer rows.Close()

	var points []PriceHistoryPoint
	for rows.Next() {
		var p PriceHistoryPoint
		var status string
		if err := rows.Scan(&p.CreatedAt, &p.PriceNumeric, &status); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		p.Status = models.Status(status)
		points = append(points, p)
	}
	return points, rows.Err()
}

// Stats summarises all stored observations. Zero prices are ignored.
func (pw *PostgresWriter) Stats() (*ListingStats, error) {
	s := &ListingStats{}
	err := pw.db.QueryRow(`
		SELECT
			COUNT(DISTINCT car_id),
			COUNT(*),
			COALESCE(AVG(NULLIF(price_numeric, 0)), 0),
			COALESCE(MIN(NULLIF(price_numeric, 0)), 0),
			COALESCE(MAX(price_numeric), 0)
		FROM listings
	`).Scan(&s.DistinctListings, &s.TotalRecords, &s.AveragePrice, &s.MinPrice, &s.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats: %w", err)
	}
	return s, nil
}

// Recent returns the newest observations across all listings.
func (pw *PostgresWriter) Recent(limit int) ([]RecentListing, error) {
	rows, err := pw.db.Query(`
		SELECT car_id, full_name, price_display, city_name, status, created_at
		FROM listings
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent: %w", err)
	}
	defer rows.Close()

	var out []RecentListing
	for rows.Next() {
		var r RecentListing
		var status string
		if err := rows.Scan(&r.CarID, &r.FullName, &r.PriceDisplay, &r.CityName, &status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan recent: %w", err)
		}
		r.Status = models.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
