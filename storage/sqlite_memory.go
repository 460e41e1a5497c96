package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"carwatch/models"
)

// SQLiteMemoryStore keeps price memory in a single-table SQLite database.
type SQLiteMemoryStore struct {
	db *sql.DB
}

// NewSQLiteMemoryStore opens (creating if needed) the database at path.
func NewSQLiteMemoryStore(path string) (*SQLiteMemoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_memory (
			car_id TEXT PRIMARY KEY,
			price  REAL NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &SQLiteMemoryStore{db: db}, nil
}

// Load reads the snapshot. Query failures yield an empty memory plus
// ErrCorruptMemory.
func (s *SQLiteMemoryStore) Load() (models.PriceMemory, error) {
	rows, err := s.db.Query(`SELECT car_id, price FROM price_memory`)
	if err != nil {
		return models.PriceMemory{}, fmt.Errorf("sqlite: load: %w: %v", ErrCorruptMemory, err)
	}
	defer rows.Close()

	memory := models.PriceMemory{}
	for rows.Next() {
		var carID string
		var price float64
		if err := rows.Scan(&carID, &price); err != nil {
			return models.PriceMemory{}, fmt.Errorf("sqlite: scan: %w: %v", ErrCorruptMemory, err)
		}
		memory[carID] = price
	}
	if err := rows.Err(); err != nil {
		return models.PriceMemory{}, fmt.Errorf("sqlite: rows: %w: %v", ErrCorruptMemory, err)
	}
	return memory, nil
}

// Save replaces the whole snapshot in one transaction.
func (s *SQLiteMemoryStore) Save(memory models.PriceMemory) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM price_memory`); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO price_memory (car_id, price) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for carID, price := range memory {
		if _, err := stmt.Exec(carID, price); err != nil {
			return fmt.Errorf("sqlite: insert %q: %w", carID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *SQLiteMemoryStore) Close() error {
	return s.db.Close()
}
