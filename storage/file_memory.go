package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"carwatch/models"
)

// FileMemoryStore keeps price memory as a flat JSON object {"car_id": price}.
type FileMemoryStore struct {
	path string
}

// NewFileMemoryStore creates a store backed by the JSON file at path.
func NewFileMemoryStore(path string) *FileMemoryStore {
	return &FileMemoryStore{path: path}
}

// Load reads the snapshot. A missing file is an empty memory; an unreadable
// or invalid one is an empty memory plus ErrCorruptMemory.
func (s *FileMemoryStore) Load() (models.PriceMemory, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.PriceMemory{}, nil
	}
	if err != nil {
		return models.PriceMemory{}, fmt.Errorf("memory: read %q: %w: %v", s.path, ErrCorruptMemory, err)
	}

	var memory models.PriceMemory
	if err := json.Unmarshal(data, &memory); err != nil {
		return models.PriceMemory{}, fmt.Errorf("memory: parse %q: %w: %v", s.path, ErrCorruptMemory, err)
	}
	if memory == nil {
		memory = models.PriceMemory{}
	}
	return memory, nil
}

// Save writes the snapshot to a temporary file in the same directory and
// renames it over the previous one, so readers see either the old or the new
// snapshot in full.
func (s *FileMemoryStore) Save(memory models.PriceMemory) error {
	if memory == nil {
		memory = models.PriceMemory{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("memory: create dir: %w", err)
	}

	data, err := json.MarshalIndent(memory, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("memory: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("memory: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("memory: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("memory: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("memory: replace %q: %w", s.path, err)
	}
	return nil
}

func (s *FileMemoryStore) Close() error { return nil }
