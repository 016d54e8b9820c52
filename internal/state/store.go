// Package state owns the coordinator's authoritative in-memory state: live
// tab records, per-window tab history, the native session mirror, the saved
// session map, quickmarks, history rings, and the enabled flag.
//
// One Store instance is created at startup and handed to every component
// that needs it. All exported methods are safe for concurrent use; each is
// atomic under the store lock. The saved-session map is durable: it is read
// from the record store at construction and written through on every
// mutation.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zchee/chromium-vim-sub001/internal/storage"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

const (
	// RecordSessions is the durable record key for the saved-session map.
	RecordSessions = "sessions"

	historyRingLimit  = 500
	lastUsedTabsLimit = 10
)

// Frame is one registered frame of a tab's page.
type Frame struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
	Top bool   `json:"top"`
}

type tabFrames struct {
	frames  []Frame
	focused int
}

// Store holds coordinator state behind one lock.
type Store struct {
	records *storage.RecordStore

	mu sync.RWMutex

	// activeTabs is keyed window id, then tab id.
	activeTabs map[int64]map[string]types.Tab

	// tabHistory holds per-window LIFO sequences of removed tabs. A
	// missing window key is an empty sequence.
	tabHistory map[int64][]types.TabHistoryEntry

	// native is the mirror of the host's closed-session log, newest
	// first; nativeIndex is the restore cursor into it. The cursor only
	// moves forward, except under the explicit retry policy.
	native      []types.Session
	nativeIndex int

	// saved is the durable named-session map: name -> URLs.
	saved map[string][]string

	enabled bool

	quickmarks map[string][]string

	commandHistory []string
	searchHistory  []string
	lastCommand    string
	lastSearch     string

	lastUsedTabs []string

	frames map[string]*tabFrames
}

// NewStore builds the Store and loads the durable saved-session map. A map
// that has never been written is created empty and written back so the
// record exists from first startup.
func NewStore(records *storage.RecordStore) (*Store, error) {
	s := &Store{
		records:    records,
		activeTabs: make(map[int64]map[string]types.Tab),
		tabHistory: make(map[int64][]types.TabHistoryEntry),
		saved:      make(map[string][]string),
		enabled:    true,
		quickmarks: make(map[string][]string),
		frames:     make(map[string]*tabFrames),
	}

	if records != nil {
		err := records.Load(RecordSessions, &s.saved)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if err := records.Save(RecordSessions, s.saved); err != nil {
				return nil, fmt.Errorf("state: seed %s record: %w", RecordSessions, err)
			}
		case err != nil:
			return nil, fmt.Errorf("state: load %s record: %w", RecordSessions, err)
		}
		if s.saved == nil {
			s.saved = make(map[string][]string)
		}
	}

	return s, nil
}

// Enabled reports the process-wide enabled flag.
func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled sets the process-wide enabled flag and returns the new value.
func (s *Store) SetEnabled(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
	return s.enabled
}

// FlipEnabled inverts the process-wide enabled flag and returns the new
// value.
func (s *Store) FlipEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = !s.enabled
	return s.enabled
}

// writeSavedLocked persists the saved-session map. Callers hold the lock.
func (s *Store) writeSavedLocked() error {
	if s.records == nil {
		return nil
	}
	if err := s.records.Save(RecordSessions, s.saved); err != nil {
		return types.NewError(types.CodeHostCall, "write sessions record", err)
	}
	return nil
}

func sortedTabs(tabs []types.Tab) {
	sort.Slice(tabs, func(i, j int) bool {
		if tabs[i].WindowID != tabs[j].WindowID {
			return tabs[i].WindowID < tabs[j].WindowID
		}
		return tabs[i].Index < tabs[j].Index
	})
}
