package state

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/zchee/chromium-vim-sub001/internal/storage"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	records, err := storage.NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}
	store, err := NewStore(records)
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}
	return store
}

func tab(id string, window int64, index int, url string) types.Tab {
	return types.Tab{ID: id, WindowID: window, Index: index, URL: url}
}

func TestNewStoreSeedsSessionsRecord(t *testing.T) {
	dir := t.TempDir()
	records, err := storage.NewRecordStore(dir)
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}
	if _, err := NewStore(records); err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}

	data, err := os.ReadFile(records.Path(RecordSessions))
	if err != nil {
		t.Fatalf("sessions record not written: %v", err)
	}
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("sessions record is not a map: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("seeded sessions record = %v; want empty", m)
	}
}

func TestArchiveRemovedTabPushesHistory(t *testing.T) {
	store := newTestStore(t)
	store.UpsertActiveTab(tab("t1", 7, 2, "https://example.com/a"))

	entry, ok := store.ArchiveRemovedTab("t1")
	if !ok {
		t.Fatal("ArchiveRemovedTab() = false; want true")
	}
	if entry.URL != "https://example.com/a" || entry.WindowID != 7 || entry.Index != 2 {
		t.Fatalf("entry = %+v; want derived from last record", entry)
	}

	if _, ok := store.ActiveTab("t1"); ok {
		t.Fatal("record still present after archive")
	}
	hist := store.TabHistory(7)
	if len(hist) != 1 || hist[0].URL != "https://example.com/a" {
		t.Fatalf("TabHistory(7) = %+v; want one entry", hist)
	}
}

func TestArchiveRemovedTabUnknownIsNoop(t *testing.T) {
	store := newTestStore(t)

	if _, ok := store.ArchiveRemovedTab("ghost"); ok {
		t.Fatal("ArchiveRemovedTab(unknown) = true; want false")
	}
	if wins := store.TabHistoryWindows(); len(wins) != 0 {
		t.Fatalf("history windows = %v; want none", wins)
	}
}

func TestTabHistoryPopsMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	store.UpsertActiveTab(tab("t1", 1, 0, "https://a.test/"))
	store.UpsertActiveTab(tab("t2", 1, 1, "https://b.test/"))

	store.ArchiveRemovedTab("t1")
	store.ArchiveRemovedTab("t2")

	first, ok := store.PopTabHistory(1)
	if !ok || first.URL != "https://b.test/" {
		t.Fatalf("first pop = %+v, %v; want b.test", first, ok)
	}
	second, ok := store.PopTabHistory(1)
	if !ok || second.URL != "https://a.test/" {
		t.Fatalf("second pop = %+v, %v; want a.test", second, ok)
	}
	if _, ok := store.PopTabHistory(1); ok {
		t.Fatal("pop on empty history = true; want false")
	}
}

func TestPopTabHistoryMissingWindowIsNoop(t *testing.T) {
	store := newTestStore(t)
	if _, ok := store.PopTabHistory(99); ok {
		t.Fatal("PopTabHistory(unknown window) = true; want false")
	}
}

func TestHistoryIsPerWindow(t *testing.T) {
	store := newTestStore(t)
	store.UpsertActiveTab(tab("t1", 1, 0, "https://a.test/"))
	store.UpsertActiveTab(tab("t2", 2, 0, "https://b.test/"))

	store.ArchiveRemovedTab("t1")
	store.ArchiveRemovedTab("t2")

	if _, ok := store.PopTabHistory(2); !ok {
		t.Fatal("window 2 history empty; want entry")
	}
	entry, ok := store.PopTabHistory(1)
	if !ok || entry.URL != "https://a.test/" {
		t.Fatalf("window 1 pop = %+v, %v; want a.test", entry, ok)
	}
}

func TestUpsertRehomesMovedTab(t *testing.T) {
	store := newTestStore(t)
	store.UpsertActiveTab(tab("t1", 1, 0, "https://a.test/"))
	store.UpsertActiveTab(tab("t1", 2, 3, "https://a.test/"))

	if got := store.ActiveTabsInWindow(1); len(got) != 0 {
		t.Fatalf("window 1 tabs = %+v; want none", got)
	}
	got, ok := store.ActiveTab("t1")
	if !ok || got.WindowID != 2 || got.Index != 3 {
		t.Fatalf("ActiveTab = %+v, %v; want rehomed to window 2", got, ok)
	}
}

func TestNextNativeSessionAdvancesOnce(t *testing.T) {
	store := newTestStore(t)
	store.SetNativeSessions([]types.Session{
		{ID: "s1", URL: "https://one.test/"},
		{ID: "s2", URL: "https://two.test/"},
	})

	sess, idx, ok := store.NextNativeSession()
	if !ok || sess.ID != "s1" || idx != 0 {
		t.Fatalf("first = %+v, %d, %v; want s1 at 0", sess, idx, ok)
	}
	sess, idx, ok = store.NextNativeSession()
	if !ok || sess.ID != "s2" || idx != 1 {
		t.Fatalf("second = %+v, %d, %v; want s2 at 1", sess, idx, ok)
	}
	if _, _, ok := store.NextNativeSession(); ok {
		t.Fatal("cursor past end handed out a session")
	}
	if got := store.SessionIndex(); got != 2 {
		t.Fatalf("SessionIndex() = %d; want 2", got)
	}
}

func TestSetNativeSessionsResetsCursor(t *testing.T) {
	store := newTestStore(t)
	store.SetNativeSessions([]types.Session{{ID: "s1"}})
	store.NextNativeSession()

	store.SetNativeSessions([]types.Session{{ID: "s9"}, {ID: "s8"}})
	if got := store.SessionIndex(); got != 0 {
		t.Fatalf("SessionIndex() after refresh = %d; want 0", got)
	}
	sess, _, ok := store.NextNativeSession()
	if !ok || sess.ID != "s9" {
		t.Fatalf("next after refresh = %+v, %v; want s9", sess, ok)
	}
}

func TestRewindSessionSlot(t *testing.T) {
	store := newTestStore(t)
	store.SetNativeSessions([]types.Session{{ID: "s1"}, {ID: "s2"}})
	_, idx, _ := store.NextNativeSession()

	store.RewindSessionSlot(idx)
	sess, again, ok := store.NextNativeSession()
	if !ok || sess.ID != "s1" || again != idx {
		t.Fatalf("after rewind = %+v, %d, %v; want s1 at %d", sess, again, ok, idx)
	}

	// Rewinding forward is ignored.
	store.RewindSessionSlot(5)
	if got := store.SessionIndex(); got != 1 {
		t.Fatalf("SessionIndex() = %d; want 1", got)
	}
}

func TestToggleQuickmarkAddRemoveDelete(t *testing.T) {
	store := newTestStore(t)

	store.ToggleQuickmark("a", "https://x.test/")
	if got := store.Quickmarks()["a"]; len(got) != 1 || got[0] != "https://x.test/" {
		t.Fatalf("after add = %v; want one url", got)
	}

	store.ToggleQuickmark("a", "https://x.test/")
	if _, ok := store.Quickmarks()["a"]; ok {
		t.Fatal("mark with zero urls survived; want deleted")
	}
}

func TestToggleQuickmarkKeepsOtherURLs(t *testing.T) {
	store := newTestStore(t)
	store.ToggleQuickmark("a", "https://x.test/")
	store.ToggleQuickmark("a", "https://y.test/")

	store.ToggleQuickmark("a", "https://x.test/")
	got := store.Quickmarks()["a"]
	if len(got) != 1 || got[0] != "https://y.test/" {
		t.Fatalf("after toggle = %v; want y.test only", got)
	}
}

func TestSavedSessionsWriteThrough(t *testing.T) {
	records, err := storage.NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}
	store, err := NewStore(records)
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}

	if err := store.SetSavedSession("work", []string{"https://a.test/", "https://b.test/"}); err != nil {
		t.Fatalf("SetSavedSession() = %v; want nil", err)
	}

	// The record on disk reflects the mutation immediately.
	var onDisk map[string][]string
	if err := records.Load(RecordSessions, &onDisk); err != nil {
		t.Fatalf("Load(sessions) = %v; want nil", err)
	}
	if got := onDisk["work"]; len(got) != 2 {
		t.Fatalf("on-disk sessions = %v; want work with 2 urls", onDisk)
	}

	if err := store.DeleteSavedSession("work"); err != nil {
		t.Fatalf("DeleteSavedSession() = %v; want nil", err)
	}
	onDisk = nil
	if err := records.Load(RecordSessions, &onDisk); err != nil {
		t.Fatalf("Load(sessions) = %v; want nil", err)
	}
	if len(onDisk) != 0 {
		t.Fatalf("on-disk sessions after delete = %v; want empty", onDisk)
	}
}

func TestSavedSessionsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	records, err := storage.NewRecordStore(dir)
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}
	store, err := NewStore(records)
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}
	if err := store.SetSavedSession("home", []string{"https://h.test/"}); err != nil {
		t.Fatalf("SetSavedSession() = %v; want nil", err)
	}

	reopened, err := NewStore(records)
	if err != nil {
		t.Fatalf("NewStore(reopen) = %v; want nil", err)
	}
	urls, ok := reopened.SavedSession("home")
	if !ok || len(urls) != 1 || urls[0] != "https://h.test/" {
		t.Fatalf("reopened session = %v, %v; want home url", urls, ok)
	}
}

func TestLastUsedTabsOrderAndCap(t *testing.T) {
	store := newTestStore(t)
	store.TouchTab("t1")
	store.TouchTab("t2")
	store.TouchTab("t1")

	got := store.LastUsedTabs()
	if len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Fatalf("LastUsedTabs() = %v; want [t1 t2]", got)
	}

	for i := 0; i < lastUsedTabsLimit+5; i++ {
		store.TouchTab(string(rune('a' + i)))
	}
	if got := store.LastUsedTabs(); len(got) != lastUsedTabsLimit {
		t.Fatalf("LastUsedTabs() length = %d; want %d", len(got), lastUsedTabsLimit)
	}
}

func TestCommandHistoryRing(t *testing.T) {
	store := newTestStore(t)
	store.AppendCommandHistory("tabnew")
	store.AppendCommandHistory("tabnew")
	store.AppendCommandHistory("quit")

	got := store.CommandHistory()
	if len(got) != 2 || got[0] != "tabnew" || got[1] != "quit" {
		t.Fatalf("CommandHistory() = %v; want [tabnew quit]", got)
	}
}

func TestFocusNextFrameCycles(t *testing.T) {
	store := newTestStore(t)
	store.AddFrame("t1", Frame{ID: 0, Top: true})
	store.AddFrame("t1", Frame{ID: 1})
	store.AddFrame("t1", Frame{ID: 2})

	var order []int64
	for i := 0; i < 4; i++ {
		f, ok := store.FocusNextFrame("t1")
		if !ok {
			t.Fatal("FocusNextFrame() = false; want true")
		}
		order = append(order, f.ID)
	}
	want := []int64{1, 2, 0, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("focus order = %v; want %v", order, want)
		}
	}

	if _, ok := store.FocusNextFrame("empty"); ok {
		t.Fatal("FocusNextFrame(no frames) = true; want false")
	}
}
