package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"carwatch/models"
)

func TestFileMemoryStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFileMemoryStore(filepath.Join(t.TempDir(), "absent.json"))

	memory, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memory == nil || len(memory) != 0 {
		t.Errorf("expected empty non-nil memory, got %v", memory)
	}
}

func TestFileMemoryStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte(`{"A1": 45000,`), 0644); err != nil {
		t.Fatal(err)
	}

	memory, err := NewFileMemoryStore(path).Load()
	if !errors.Is(err, ErrCorruptMemory) {
		t.Errorf("expected ErrCorruptMemory, got %v", err)
	}
	if memory == nil || len(memory) != 0 {
		t.Errorf("expected empty non-nil memory, got %v", memory)
	}
}

func TestFileMemoryStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	s := NewFileMemoryStore(path)

	want := models.PriceMemory{"A1": 43000, "https://example.com/b": 52990.5}
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFileMemoryStoreSaveReplacesWholesale(t *testing.T) {
	dir := t.TempDir()
	s := NewFileMemoryStore(filepath.Join(dir, "memory.json"))

	if err := s.Save(models.PriceMemory{"A1": 1, "B2": 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(models.PriceMemory{"C3": 3}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Load()
	if !reflect.DeepEqual(got, models.PriceMemory{"C3": 3}) {
		t.Errorf("got %v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestSQLiteMemoryStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteMemoryStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	empty, err := s.Load()
	if err != nil || len(empty) != 0 {
		t.Fatalf("fresh store: got %v, %v", empty, err)
	}

	if err := s.Save(models.PriceMemory{"A1": 45000, "B2": 50000}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(models.PriceMemory{"A1": 43000}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, models.PriceMemory{"A1": 43000}) {
		t.Errorf("got %v", got)
	}
}

func TestOpenMemoryStorePicksBackend(t *testing.T) {
	dir := t.TempDir()

	js, err := OpenMemoryStore(filepath.Join(dir, "memory.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := js.(*FileMemoryStore); !ok {
		t.Errorf("json path: got %T", js)
	}

	db, err := OpenMemoryStore(filepath.Join(dir, "memory.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, ok := db.(*SQLiteMemoryStore); !ok {
		t.Errorf("sqlite path: got %T", db)
	}
}
