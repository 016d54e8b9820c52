package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var keyRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// ErrNotFound reports that a record has never been written.
var ErrNotFound = errors.New("record not found")

// RecordStore keeps durable keyed JSON records on disk, one file per key.
// Every mutation is written through immediately; there is no shutdown flush.
type RecordStore struct {
	dir string
	mu  sync.RWMutex
}

// NewRecordStore creates a RecordStore and ensures the directory exists.
func NewRecordStore(dir string) (*RecordStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record store: mkdir %s: %w", dir, err)
	}
	return &RecordStore{dir: dir}, nil
}

func (s *RecordStore) validateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid record key: %q", key)
	}
	return nil
}

// Dir returns the directory records live in. Useful for watching.
func (s *RecordStore) Dir() string { return s.dir }

// Path returns the file a record key maps to.
func (s *RecordStore) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads a record into v. A key that was never written returns
// ErrNotFound (wrapped).
func (s *RecordStore) Load(key string, v any) error {
	if err := s.validateKey(key); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("record %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("record store: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("record store: unmarshal %s: %w", key, err)
	}
	return nil
}

// Save writes a record through to disk. The write goes to a temp file in
// the same directory and is renamed into place so watchers and crashed
// writers never observe a torn record.
func (s *RecordStore) Save(key string, v any) error {
	if err := s.validateKey(key); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("record store: marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("record store: temp %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("record store: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("record store: close %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, s.Path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("record store: rename %s: %w", key, err)
	}
	return nil
}

// Keys lists all stored record keys, sorted.
func (s *RecordStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("record store: glob: %w", err)
	}

	keys := make([]string, 0, len(matches))
	for _, path := range matches {
		key := strings.TrimSuffix(filepath.Base(path), ".json")
		if keyRe.MatchString(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
