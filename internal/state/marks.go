package state

// Quickmarks returns a copy of the quickmark map: mark letter -> URLs.
func (s *Store) Quickmarks() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.quickmarks))
	for mark, urls := range s.quickmarks {
		cp := make([]string, len(urls))
		copy(cp, urls)
		out[mark] = cp
	}
	return out
}

// ToggleQuickmark adds url under mark, or removes it when already present.
// A mark whose last URL is removed is deleted outright.
func (s *Store) ToggleQuickmark(mark, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := s.quickmarks[mark]
	for i, u := range urls {
		if u == url {
			urls = append(urls[:i], urls[i+1:]...)
			if len(urls) == 0 {
				delete(s.quickmarks, mark)
			} else {
				s.quickmarks[mark] = urls
			}
			return
		}
	}
	s.quickmarks[mark] = append(urls, url)
}

// ReplaceQuickmarks swaps the whole quickmark map. Marks with no URLs are
// dropped rather than kept empty.
func (s *Store) ReplaceQuickmarks(m map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quickmarks = make(map[string][]string, len(m))
	for mark, urls := range m {
		if len(urls) == 0 {
			continue
		}
		cp := make([]string, len(urls))
		copy(cp, urls)
		s.quickmarks[mark] = cp
	}
}

// AppendCommandHistory appends one entry to the command history ring.
func (s *Store) AppendCommandHistory(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandHistory = appendRing(s.commandHistory, value)
}

// CommandHistory returns a copy of the command history, oldest first.
func (s *Store) CommandHistory() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.commandHistory))
	copy(out, s.commandHistory)
	return out
}

// AppendSearchHistory appends one entry to the search history ring.
func (s *Store) AppendSearchHistory(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchHistory = appendRing(s.searchHistory, value)
}

// SearchHistory returns a copy of the search history, oldest first.
func (s *Store) SearchHistory() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.searchHistory))
	copy(out, s.searchHistory)
	return out
}

// SetLastCommand records the most recent repeatable command.
func (s *Store) SetLastCommand(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommand = value
}

// LastCommand returns the most recent repeatable command.
func (s *Store) LastCommand() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCommand
}

// SetLastSearch records the most recent search term and appends it to the
// search history.
func (s *Store) SetLastSearch(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSearch = value
	if value != "" {
		s.searchHistory = appendRing(s.searchHistory, value)
	}
}

// LastSearch returns the most recent search term.
func (s *Store) LastSearch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSearch
}

func appendRing(ring []string, value string) []string {
	if value == "" {
		return ring
	}
	// Repeated submissions of the same entry collapse onto one slot.
	if n := len(ring); n > 0 && ring[n-1] == value {
		return ring
	}
	ring = append(ring, value)
	if len(ring) > historyRingLimit {
		ring = ring[len(ring)-historyRingLimit:]
	}
	return ring
}
