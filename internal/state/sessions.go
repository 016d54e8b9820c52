package state

import (
	"sort"

	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// SetNativeSessions replaces the native session mirror and resets the
// restore cursor to the newest entry. The list is kept in host order,
// newest first.
func (s *Store) SetNativeSessions(list []types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.native = make([]types.Session, len(list))
	copy(s.native, list)
	s.nativeIndex = 0
}

// NativeSessions returns a copy of the native session mirror.
func (s *Store) NativeSessions() []types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Session, len(s.native))
	copy(out, s.native)
	return out
}

// SessionIndex returns the restore cursor.
func (s *Store) SessionIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nativeIndex
}

// NextNativeSession reads the session under the cursor and advances the
// cursor in one atomic step, so each slot is handed out at most once. A
// cursor at or past the end of the mirror returns false and stays put.
func (s *Store) NextNativeSession() (types.Session, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nativeIndex >= len(s.native) {
		return types.Session{}, s.nativeIndex, false
	}
	idx := s.nativeIndex
	sess := s.native[idx]
	s.nativeIndex++
	return sess, idx, true
}

// RewindSessionSlot moves the cursor back to slot idx. Only the configured
// retry-failed-restore policy calls this; it trades the cursor's forward
// monotonicity for another attempt at the same slot.
func (s *Store) RewindSessionSlot(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx >= 0 && idx < s.nativeIndex {
		s.nativeIndex = idx
	}
}

// SavedSessionNames lists saved-session names, sorted.
func (s *Store) SavedSessionNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.saved))
	for name := range s.saved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SavedSessions returns a copy of the saved-session map.
func (s *Store) SavedSessions() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.saved))
	for name, urls := range s.saved {
		cp := make([]string, len(urls))
		copy(cp, urls)
		out[name] = cp
	}
	return out
}

// SavedSession returns one saved session's URLs.
func (s *Store) SavedSession(name string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls, ok := s.saved[name]
	if !ok {
		return nil, false
	}
	cp := make([]string, len(urls))
	copy(cp, urls)
	return cp, true
}

// SetSavedSession stores a named session and writes the map through.
// An empty URL list deletes the name.
func (s *Store) SetSavedSession(name string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(urls) == 0 {
		delete(s.saved, name)
	} else {
		cp := make([]string, len(urls))
		copy(cp, urls)
		s.saved[name] = cp
	}
	return s.writeSavedLocked()
}

// DeleteSavedSession removes a named session and writes the map through.
// Unknown names are a no-op.
func (s *Store) DeleteSavedSession(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.saved[name]; !ok {
		return nil
	}
	delete(s.saved, name)
	return s.writeSavedLocked()
}

// ReplaceSavedSessions swaps the whole saved-session map and writes it
// through. A nil map clears it.
func (s *Store) ReplaceSavedSessions(m map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = make(map[string][]string, len(m))
	for name, urls := range m {
		cp := make([]string, len(urls))
		copy(cp, urls)
		s.saved[name] = cp
	}
	return s.writeSavedLocked()
}
