package storage

import (
	"errors"
	"path/filepath"
	"strings"

	"carwatch/models"
)

// ErrCorruptMemory is returned by a PriceMemoryStore whose stored snapshot
// cannot be read. The accompanying memory is empty and usable.
var ErrCorruptMemory = errors.New("price memory is corrupt")

// PriceMemoryStore loads and replaces the last-seen price snapshot.
// Load never returns a nil map. Save replaces the snapshot atomically.
type PriceMemoryStore interface {
	Load() (models.PriceMemory, error)
	Save(memory models.PriceMemory) error
	Close() error
}

// ObservationWriter is the interface any outbound storage sink must satisfy.
type ObservationWriter interface {
	Write(observations []*models.Observation) error
	Close() error
}

// OpenMemoryStore picks the backend from the file extension: ".db", ".sqlite"
// and ".sqlite3" use SQLite, anything else a JSON file.
func OpenMemoryStore(path string) (PriceMemoryStore, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		s, err := NewSQLiteMemoryStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return NewFileMemoryStore(path), nil
	}
}
