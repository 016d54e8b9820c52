package history

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/zchee/chromium-vim-sub001/internal/browser/browsertest"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/storage"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

func newTestState(t *testing.T) *state.Store {
	t.Helper()
	records, err := storage.NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}
	store, err := state.NewStore(records)
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}
	return store
}

func newTestFeed() *events.Feed {
	return events.NewFeed(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestServiceProbeSelectsTracker(t *testing.T) {
	svc := NewService(browsertest.NewFakeHost(), newTestState(t), newTestFeed(), Options{})
	if got := svc.Mode(); got != "tracker" {
		t.Fatalf("Mode() = %q; want tracker", got)
	}
}

func TestServiceProbeSelectsNative(t *testing.T) {
	svc := NewService(browsertest.NewFakeSessionHost(), newTestState(t), newTestFeed(), Options{})
	if got := svc.Mode(); got != "native" {
		t.Fatalf("Mode() = %q; want native", got)
	}
}

func TestTrackerArchivesRemovedTab(t *testing.T) {
	host := browsertest.NewFakeHost()
	store := newTestState(t)
	tracker := NewTracker(host, store, newTestFeed(), true)

	ctx := context.Background()
	if err := tracker.Start(ctx); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer tracker.Stop()

	host.AddTab(types.Tab{ID: "t1", WindowID: 3, Index: 1, URL: "https://old.test/", Pinned: true})
	waitFor(t, func() bool {
		_, ok := store.ActiveTab("t1")
		return ok
	})

	// The archive derives from the last known record, including the
	// update that arrived before removal.
	host.UpdateTab(types.Tab{ID: "t1", WindowID: 3, Index: 1, URL: "https://new.test/", Pinned: true}, true)
	host.RemoveTab("t1")

	waitFor(t, func() bool { return len(store.TabHistory(3)) == 1 })
	entry := store.TabHistory(3)[0]
	if entry.URL != "https://new.test/" || !entry.Pinned || entry.WindowID != 3 {
		t.Fatalf("archived entry = %+v; want updated snapshot", entry)
	}
	if _, ok := store.ActiveTab("t1"); ok {
		t.Fatal("live record survived removal")
	}
}

func TestTrackerRemovalOfUnknownTabIsNoop(t *testing.T) {
	host := browsertest.NewFakeHost()
	store := newTestState(t)
	tracker := NewTracker(host, store, newTestFeed(), true)

	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer tracker.Stop()

	host.RemoveTab("never-seen")

	time.Sleep(50 * time.Millisecond)
	if wins := store.TabHistoryWindows(); len(wins) != 0 {
		t.Fatalf("history windows = %v; want none", wins)
	}
}

func TestTrackerDiscardsVanishedUpdate(t *testing.T) {
	host := browsertest.NewFakeHost()
	store := newTestState(t)
	tracker := NewTracker(host, store, newTestFeed(), true)

	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer tracker.Stop()

	// An update event with no snapshot forces a re-query; the tab is
	// already gone, so the result is discarded silently.
	host.UpdateTab(types.Tab{ID: "ghost", WindowID: 1}, false)
	host.RemoveTab("ghost")

	time.Sleep(50 * time.Millisecond)
	if _, ok := store.ActiveTab("ghost"); ok {
		t.Fatal("vanished tab gained a record")
	}
}

func TestTrackerStepBackRecreatesSnapshot(t *testing.T) {
	host := browsertest.NewFakeHost()
	store := newTestState(t)
	tracker := NewTracker(host, store, newTestFeed(), true)

	ctx := context.Background()
	if err := tracker.Start(ctx); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer tracker.Stop()

	host.AddTab(types.Tab{ID: "t1", WindowID: 3, Index: 4, URL: "https://a.test/", Pinned: true})
	waitFor(t, func() bool {
		_, ok := store.ActiveTab("t1")
		return ok
	})
	host.RemoveTab("t1")
	waitFor(t, func() bool { return len(store.TabHistory(3)) == 1 })

	if err := tracker.StepBack(ctx, 3); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}

	created := host.CreatedTabs()
	if len(created) != 1 {
		t.Fatalf("created = %d tabs; want 1", len(created))
	}
	got := created[0]
	if got.URL != "https://a.test/" || got.Index != 4 || !got.Pinned || !got.Active || got.WindowID != 3 {
		t.Fatalf("CreateTab options = %+v; want archived snapshot with active=true", got)
	}

	if len(store.TabHistory(3)) != 0 {
		t.Fatal("entry not consumed by StepBack")
	}
}

func TestTrackerStepBackEmptyIsNoop(t *testing.T) {
	host := browsertest.NewFakeHost()
	tracker := NewTracker(host, newTestState(t), newTestFeed(), true)

	if err := tracker.StepBack(context.Background(), 42); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}
	if len(host.CreatedTabs()) != 0 {
		t.Fatal("no-op StepBack created a tab")
	}
}

func TestTrackerStepBackConsumesEntryOnFailure(t *testing.T) {
	host := browsertest.NewFakeHost()
	store := newTestState(t)
	tracker := NewTracker(host, store, newTestFeed(), true)

	store.UpsertActiveTab(types.Tab{ID: "t1", WindowID: 1, URL: "https://a.test/"})
	store.ArchiveRemovedTab("t1")

	host.CreateErr = errors.New("window gone")
	if err := tracker.StepBack(context.Background(), 1); err == nil {
		t.Fatal("StepBack() = nil; want error")
	}
	if len(store.TabHistory(1)) != 0 {
		t.Fatal("failed StepBack left entry in place; want consumed")
	}
}

func TestNativeAdapterRestoresAtMostOncePerSlot(t *testing.T) {
	host := browsertest.NewFakeSessionHost()
	host.SetSessions([]types.Session{
		{ID: "s1", URL: "https://one.test/"},
		{ID: "s2", URL: "https://two.test/"},
	})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), false)

	ctx := context.Background()
	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer adapter.Stop()

	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}
	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}

	restored := host.Restored()
	if len(restored) != 2 || restored[0] != "s1" || restored[1] != "s2" {
		t.Fatalf("restored = %v; want [s1 s2]", restored)
	}

	// Past the end: logged no-op, nothing restored.
	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() past end = %v; want nil", err)
	}
	if got := host.Restored(); len(got) != 2 {
		t.Fatalf("restored after past-end = %v; want unchanged", got)
	}
}

func TestNativeAdapterFailureAdvancesCursor(t *testing.T) {
	host := browsertest.NewFakeSessionHost()
	host.SetSessions([]types.Session{
		{ID: "s1", URL: "https://one.test/"},
		{ID: "s2", URL: "https://two.test/"},
	})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), false)

	ctx := context.Background()
	if err := adapter.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() = %v; want nil", err)
	}

	host.RestoreErr = errors.New("host busy")
	if err := adapter.StepBack(ctx, 0); err == nil {
		t.Fatal("StepBack() = nil; want error")
	}
	host.RestoreErr = nil

	// The failed slot is not retried; the next attempt moves on.
	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}
	restored := host.Restored()
	if len(restored) != 1 || restored[0] != "s2" {
		t.Fatalf("restored = %v; want [s2]", restored)
	}
}

func TestNativeAdapterRetryPolicyRewindsCursor(t *testing.T) {
	host := browsertest.NewFakeSessionHost()
	host.SetSessions([]types.Session{
		{ID: "s1", URL: "https://one.test/"},
		{ID: "s2", URL: "https://two.test/"},
	})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), true)

	ctx := context.Background()
	if err := adapter.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() = %v; want nil", err)
	}

	host.RestoreErr = errors.New("host busy")
	if err := adapter.StepBack(ctx, 0); err == nil {
		t.Fatal("StepBack() = nil; want error")
	}
	host.RestoreErr = nil

	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}
	restored := host.Restored()
	if len(restored) != 1 || restored[0] != "s1" {
		t.Fatalf("restored = %v; want retried [s1]", restored)
	}
}

func TestNativeAdapterRefreshOnLogChange(t *testing.T) {
	host := browsertest.NewFakeSessionHost()
	host.SetSessions([]types.Session{{ID: "s1", URL: "https://one.test/"}})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), false)

	ctx := context.Background()
	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer adapter.Stop()

	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}

	// A log change refreshes the mirror and resets the cursor.
	host.SetSessions([]types.Session{
		{ID: "s9", URL: "https://nine.test/"},
		{ID: "s1", URL: "https://one.test/"},
	})
	waitFor(t, func() bool { return store.SessionIndex() == 0 && len(store.NativeSessions()) == 2 })

	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}
	restored := host.Restored()
	if restored[len(restored)-1] != "s9" {
		t.Fatalf("restored = %v; want newest s9 last", restored)
	}
}

func TestNativeAdapterFiltersWindowEntries(t *testing.T) {
	host := browsertest.NewFakeSessionHost()
	host.SetSessions([]types.Session{
		{ID: "w1", Title: "window", URL: ""},
		{ID: "s1", URL: "https://one.test/"},
	})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), false)

	if err := adapter.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v; want nil", err)
	}
	got := store.NativeSessions()
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("mirror = %+v; want single-tab entries only", got)
	}
}

func TestServiceProbeSelectsNativeWithoutNotifier(t *testing.T) {
	svc := NewService(browsertest.NewFakeQuietSessionHost(), newTestState(t), newTestFeed(), Options{})
	if got := svc.Mode(); got != "native" {
		t.Fatalf("Mode() = %q; want native", got)
	}
}

func TestNativeAdapterRefreshesFromRemovalsWithoutNotifier(t *testing.T) {
	host := browsertest.NewFakeQuietSessionHost()
	host.AddTab(types.Tab{ID: "t1", WindowID: 1, URL: "https://one.test/", Title: "one"})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), false)

	ctx := context.Background()
	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	defer adapter.Stop()

	if got := len(store.NativeSessions()); got != 0 {
		t.Fatalf("mirror size = %d; want 0 before any removal", got)
	}

	// Closing the tab grows the host log; the removal event is the only
	// signal, so it must drive the refresh.
	host.RemoveTab("t1")

	sessions := store.NativeSessions()
	if len(sessions) != 1 || sessions[0].URL != "https://one.test/" {
		t.Fatalf("mirror = %+v; want the closed tab's session", sessions)
	}

	if err := adapter.StepBack(ctx, 0); err != nil {
		t.Fatalf("StepBack() = %v; want nil", err)
	}
	restored := host.Restored()
	if len(restored) != 1 || restored[0] != "sess-t1" {
		t.Fatalf("restored = %v; want the native session id", restored)
	}
}

func TestNativeAdapterStopUnsubscribesRemovalRefresh(t *testing.T) {
	host := browsertest.NewFakeQuietSessionHost()
	host.AddTab(types.Tab{ID: "t1", WindowID: 1, URL: "https://one.test/"})
	store := newTestState(t)
	adapter := NewNativeAdapter(host, host, store, newTestFeed(), false)

	if err := adapter.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	adapter.Stop()

	host.RemoveTab("t1")
	if got := len(store.NativeSessions()); got != 0 {
		t.Fatalf("mirror size = %d; want 0 after Stop", got)
	}
}
