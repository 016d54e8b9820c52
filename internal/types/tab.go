package types

// Tab is a live snapshot of one browser tab.
type Tab struct {
	ID       string `json:"id"`
	WindowID int64  `json:"window_id"`
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Active   bool   `json:"active"`
	Pinned   bool   `json:"pinned"`
	Status   string `json:"status,omitempty"`
}

// TabHistoryEntry is the snapshot taken when a tab is removed, consumed
// exactly once when that tab is restored.
type TabHistoryEntry struct {
	ID       string `json:"id"`
	WindowID int64  `json:"window_id"`
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Pinned   bool   `json:"pinned"`
	Active   bool   `json:"active"`
}

// Session is one entry of the host's recently-closed log.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// SavedSession is a user-named tab set kept in the durable session map.
type SavedSession struct {
	Name string   `json:"name"`
	URLs []string `json:"urls"`
}

// TabEventKind classifies host tab lifecycle notifications.
type TabEventKind string

const (
	TabCreated   TabEventKind = "created"
	TabUpdated   TabEventKind = "updated"
	TabRemoved   TabEventKind = "removed"
	TabActivated TabEventKind = "activated"
)

// TabEvent is one host tab lifecycle notification. Tab is populated for
// created/updated events; removed and activated carry identifiers only.
type TabEvent struct {
	Kind     TabEventKind `json:"kind"`
	TabID    string       `json:"tab_id"`
	WindowID int64        `json:"window_id,omitempty"`
	Tab      *Tab         `json:"tab,omitempty"`
}
