package state

import (
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// UpsertActiveTab inserts or refreshes the live record for a tab. A tab
// that moved between windows is re-homed: the stale record under the old
// window is dropped first.
func (s *Store) UpsertActiveTab(tab types.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.findTabLocked(tab.ID); ok && old.WindowID != tab.WindowID {
		delete(s.activeTabs[old.WindowID], tab.ID)
		if len(s.activeTabs[old.WindowID]) == 0 {
			delete(s.activeTabs, old.WindowID)
		}
	}

	win := s.activeTabs[tab.WindowID]
	if win == nil {
		win = make(map[string]types.Tab)
		s.activeTabs[tab.WindowID] = win
	}
	win[tab.ID] = tab
}

// ActiveTab returns the live record for a tab, searching all windows.
func (s *Store) ActiveTab(tabID string) (types.Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findTabLocked(tabID)
}

func (s *Store) findTabLocked(tabID string) (types.Tab, bool) {
	for _, win := range s.activeTabs {
		if tab, ok := win[tabID]; ok {
			return tab, true
		}
	}
	return types.Tab{}, false
}

// ActiveTabs returns all live records ordered by window, then index.
func (s *Store) ActiveTabs() []types.Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Tab, 0, 16)
	for _, win := range s.activeTabs {
		for _, tab := range win {
			out = append(out, tab)
		}
	}
	sortedTabs(out)
	return out
}

// ActiveTabsInWindow returns one window's live records ordered by index.
func (s *Store) ActiveTabsInWindow(windowID int64) []types.Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()

	win := s.activeTabs[windowID]
	out := make([]types.Tab, 0, len(win))
	for _, tab := range win {
		out = append(out, tab)
	}
	sortedTabs(out)
	return out
}

// ArchiveRemovedTab deletes a tab's live record and, in the same atomic
// step, derives its history entry from that last known record and pushes it
// onto the owning window's sequence. The record is never re-queried: by the
// time a removal is observed the tab is already gone from the host.
//
// An unknown tab is a no-op and returns false.
func (s *Store) ArchiveRemovedTab(tabID string) (types.TabHistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.findTabLocked(tabID)
	if !ok {
		return types.TabHistoryEntry{}, false
	}

	delete(s.activeTabs[tab.WindowID], tabID)
	if len(s.activeTabs[tab.WindowID]) == 0 {
		delete(s.activeTabs, tab.WindowID)
	}

	entry := types.TabHistoryEntry{
		ID:       tab.ID,
		WindowID: tab.WindowID,
		Index:    tab.Index,
		URL:      tab.URL,
		Pinned:   tab.Pinned,
		Active:   tab.Active,
	}
	s.tabHistory[tab.WindowID] = append(s.tabHistory[tab.WindowID], entry)

	delete(s.frames, tabID)
	s.dropLastUsedLocked(tabID)

	return entry, true
}

// DropActiveTab deletes a tab's live record without recording history.
// Used when a removal must not be archived (the tab was restored by us and
// is being replaced, or the window is closing wholesale).
func (s *Store) DropActiveTab(tabID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.findTabLocked(tabID)
	if !ok {
		return false
	}
	delete(s.activeTabs[tab.WindowID], tabID)
	if len(s.activeTabs[tab.WindowID]) == 0 {
		delete(s.activeTabs, tab.WindowID)
	}
	delete(s.frames, tabID)
	s.dropLastUsedLocked(tabID)
	return true
}

// PopTabHistory removes and returns the most recently archived entry for a
// window. An empty (or absent) sequence returns false.
func (s *Store) PopTabHistory(windowID int64) (types.TabHistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.tabHistory[windowID]
	if len(seq) == 0 {
		return types.TabHistoryEntry{}, false
	}
	entry := seq[len(seq)-1]
	s.tabHistory[windowID] = seq[:len(seq)-1]
	return entry, true
}

// TabHistory returns a copy of one window's history, oldest first.
func (s *Store) TabHistory(windowID int64) []types.TabHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.tabHistory[windowID]
	out := make([]types.TabHistoryEntry, len(seq))
	copy(out, seq)
	return out
}

// TabHistoryWindows lists window ids that currently have history.
func (s *Store) TabHistoryWindows() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.tabHistory))
	for id, seq := range s.tabHistory {
		if len(seq) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// TouchTab moves a tab to the front of the last-used list.
func (s *Store) TouchTab(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLastUsedLocked(tabID)
	s.lastUsedTabs = append([]string{tabID}, s.lastUsedTabs...)
	if len(s.lastUsedTabs) > lastUsedTabsLimit {
		s.lastUsedTabs = s.lastUsedTabs[:lastUsedTabsLimit]
	}
}

// LastUsedTabs returns tab ids ordered most recently activated first.
func (s *Store) LastUsedTabs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.lastUsedTabs))
	copy(out, s.lastUsedTabs)
	return out
}

func (s *Store) dropLastUsedLocked(tabID string) {
	for i, id := range s.lastUsedTabs {
		if id == tabID {
			s.lastUsedTabs = append(s.lastUsedTabs[:i], s.lastUsedTabs[i+1:]...)
			return
		}
	}
}

// AddFrame registers a frame under its tab.
func (s *Store) AddFrame(tabID string, frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf := s.frames[tabID]
	if tf == nil {
		tf = &tabFrames{}
		s.frames[tabID] = tf
	}
	for i, f := range tf.frames {
		if f.ID == frame.ID {
			tf.frames[i] = frame
			return
		}
	}
	tf.frames = append(tf.frames, frame)
}

// Frames returns a copy of a tab's registered frames.
func (s *Store) Frames(tabID string) []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tf := s.frames[tabID]
	if tf == nil {
		return nil
	}
	out := make([]Frame, len(tf.frames))
	copy(out, tf.frames)
	return out
}

// FocusNextFrame advances a tab's focus cursor and returns the frame now
// focused. Tabs with no registered frames return false.
func (s *Store) FocusNextFrame(tabID string) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf := s.frames[tabID]
	if tf == nil || len(tf.frames) == 0 {
		return Frame{}, false
	}
	tf.focused = (tf.focused + 1) % len(tf.frames)
	return tf.frames[tf.focused], true
}

// ClearFrames drops a tab's frame registrations, e.g. on navigation.
func (s *Store) ClearFrames(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, tabID)
}
