package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"carwatch/models"
)

var csvHeader = []string{
	"run_id", "observed_at", "status", "previous_price", "car_id", "source", "full_name",
	"model_year", "price_display", "price_numeric", "city", "link",
	"fipe_value", "fipe_model", "fipe_year", "fipe_source",
}

// CSVWriter writes a run's observations to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends one row per observation.
func (c *CSVWriter) Write(observations []*models.Observation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range observations {
		if o == nil || o.Listing == nil {
			continue
		}
		if err := c.writer.Write(csvRow(o)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

func csvRow(o *models.Observation) []string {
	l := o.Listing
	prev := ""
	if o.Status == models.StatusDecreased || o.Status == models.StatusIncreased {
		prev = strconv.FormatFloat(o.PreviousPrice, 'f', 2, 64)
	}

	row := []string{
		o.RunID,
		o.ObservedAt.Format(time.RFC3339),
		string(o.Status),
		prev,
		l.CarID,
		l.Source,
		l.FullName(),
		l.ModelYear,
		l.DisplayPrice,
		strconv.FormatFloat(l.NumericPrice, 'f', 2, 64),
		l.City,
		l.Link,
		"", "", "", "",
	}
	if v := o.Valuation; v != nil {
		row[12], row[13], row[14], row[15] = v.Value, v.ModelName, v.YearLabel, v.SourceURL
	}
	return row
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
