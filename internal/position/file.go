package position

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileRecord is the on-disk layout of a FileStore.
type fileRecord struct {
	Entries   map[string]string `json:"entries"`
	UpdatedAt string            `json:"updated_at"`
}

// FileStore persists ids in a single JSON file, replaced atomically on every write.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return "", false, err
	}
	value, ok := rec.Entries[key]
	return value, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	rec.Entries[key] = value
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return s.save(rec)
}

func (s *FileStore) load() (fileRecord, error) {
	rec := fileRecord{Entries: make(map[string]string)}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, nil
		}
		return rec, fmt.Errorf("stat position store: %w", err)
	}
	if stat.IsDir() {
		return rec, fmt.Errorf("position store path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return rec, fmt.Errorf("read position store: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse position store: %w", err)
	}
	if rec.Entries == nil {
		rec.Entries = make(map[string]string)
	}
	return rec, nil
}

func (s *FileStore) save(rec fileRecord) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create position store dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal position store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write position store tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename position store: %w", err)
	}
	return nil
}
