package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testRecord struct {
	Name  string   `json:"name"`
	Items []string `json:"items,omitempty"`
}

func TestRecordStoreRoundTrip(t *testing.T) {
	store, err := NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}

	want := testRecord{Name: "sessions", Items: []string{"a", "b"}}
	if err := store.Save("sessions", want); err != nil {
		t.Fatalf("Save() = %v; want nil", err)
	}

	var got testRecord
	if err := store.Load("sessions", &got); err != nil {
		t.Fatalf("Load() = %v; want nil", err)
	}
	if got.Name != want.Name || len(got.Items) != len(want.Items) {
		t.Fatalf("Load() = %+v; want %+v", got, want)
	}
}

func TestRecordStoreLoadMissingReturnsNotFound(t *testing.T) {
	store, err := NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}

	var got testRecord
	err = store.Load("settings", &got)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() = %v; want ErrNotFound", err)
	}
}

func TestRecordStoreRejectsInvalidKey(t *testing.T) {
	store, err := NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}

	cases := []string{"", "Settings", "../escape", "a b", "9lead"}
	for _, key := range cases {
		if err := store.Save(key, testRecord{}); err == nil {
			t.Fatalf("Save(%q) = nil; want error", key)
		}
	}
}

func TestRecordStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecordStore(dir)
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}

	if err := store.Save("settings", testRecord{Name: "settings"}); err != nil {
		t.Fatalf("Save() = %v; want nil", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("filepath.Glob() failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("found leftover temp files: %v", matches)
	}
	if _, err := os.Stat(store.Path("settings")); err != nil {
		t.Fatalf("os.Stat(record) = %v; want nil", err)
	}
}

func TestRecordStoreKeysSorted(t *testing.T) {
	store, err := NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}

	for _, key := range []string{"sessions", "lifecycle", "settings"} {
		if err := store.Save(key, testRecord{Name: key}); err != nil {
			t.Fatalf("Save(%q) = %v; want nil", key, err)
		}
	}

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("Keys() = %v; want nil", err)
	}
	want := []string{"lifecycle", "sessions", "settings"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v; want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v; want %v", keys, want)
		}
	}
}
