// Package history restores recently closed tabs. Two mutually exclusive
// strategies exist: a native adapter over the host's closed-session log,
// and a fallback tracker that archives removal snapshots itself. The
// choice is made once at startup by capability probe and holds for the
// process lifetime.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

const trackerQueueSize = 1024

// Tracker keeps the store's live tab records current from host events. When
// archiving is on it is also the fallback restore strategy: every observed
// removal pushes a snapshot onto the owning window's history sequence.
//
// Events are pumped through one goroutine, so same-window removals are
// archived in arrival order.
type Tracker struct {
	host    browser.Host
	store   *state.Store
	feed    *events.Feed
	archive bool

	queue       chan types.TabEvent
	stopCh      chan struct{}
	doneCh      chan struct{}
	unsubscribe func()
	started     atomic.Bool
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewTracker creates the tracker. archive selects whether removals are
// recorded for restore; the record mirror runs either way.
func NewTracker(host browser.Host, store *state.Store, feed *events.Feed, archive bool) *Tracker {
	return &Tracker{
		host:    host,
		store:   store,
		feed:    feed,
		archive: archive,
		queue:   make(chan types.TabEvent, trackerQueueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Name identifies the strategy in logs and the ops surface.
func (t *Tracker) Name() string { return "tracker" }

// Start seeds the record mirror from a full tab enumeration and begins
// pumping host events.
func (t *Tracker) Start(ctx context.Context) error {
	var err error
	t.startOnce.Do(func() {
		tabs, tabsErr := t.host.Tabs(ctx)
		if tabsErr != nil {
			err = tabsErr
			return
		}
		for _, tab := range tabs {
			t.store.UpsertActiveTab(tab)
		}

		t.unsubscribe = t.host.Subscribe(t.enqueue)
		t.started.Store(true)
		go t.run(ctx)
		slog.Info("tab tracker started", "tabs", len(tabs), "archive", t.archive)
	})
	return err
}

// Stop unsubscribes from the host and drains the pump.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		if t.unsubscribe != nil {
			t.unsubscribe()
		}
		close(t.stopCh)
		if t.started.Load() {
			<-t.doneCh
		}
	})
}

// enqueue runs on the host's event goroutine and must not block. Overflow
// drops the event; a dropped removal means one unarchivable tab, which the
// feed keeps visible.
func (t *Tracker) enqueue(evt types.TabEvent) {
	select {
	case t.queue <- evt:
	default:
		t.feed.Emit("history", "event_dropped", map[string]any{
			"kind":   string(evt.Kind),
			"tab_id": evt.TabID,
		})
	}
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case evt := <-t.queue:
			t.handle(ctx, evt)
		}
	}
}

func (t *Tracker) handle(ctx context.Context, evt types.TabEvent) {
	switch evt.Kind {
	case types.TabCreated, types.TabUpdated:
		t.applySnapshot(ctx, evt)
	case types.TabActivated:
		t.store.TouchTab(evt.TabID)
		t.applySnapshot(ctx, evt)
	case types.TabRemoved:
		t.onRemoved(evt.TabID)
	}
}

// applySnapshot upserts the event's tab snapshot, re-querying the host when
// the event carried none. A tab that vanished between the event and the
// query is discarded silently.
func (t *Tracker) applySnapshot(ctx context.Context, evt types.TabEvent) {
	tab := evt.Tab
	if tab == nil {
		fresh, err := t.host.Tab(ctx, evt.TabID)
		if err != nil {
			var coded *types.CodedError
			if errors.As(err, &coded) && coded.Code == types.CodeInvalidTarget {
				return
			}
			t.feed.Discard("history", "tab snapshot query", err)
			return
		}
		tab = &fresh
	}
	t.store.UpsertActiveTab(*tab)
}

func (t *Tracker) onRemoved(tabID string) {
	if !t.archive {
		t.store.DropActiveTab(tabID)
		return
	}

	entry, ok := t.store.ArchiveRemovedTab(tabID)
	if !ok {
		// Never saw this tab; nothing to archive.
		return
	}
	t.feed.Emit("history", "tab_archived", map[string]any{
		"tab_id":    entry.ID,
		"window_id": entry.WindowID,
		"url":       entry.URL,
	})
}

// StepBack pops the most recent archived entry for a window and asks the
// host for a tab matching the snapshot. An empty sequence is a no-op. The
// entry is consumed either way; a failed host call is reported but not
// retried.
func (t *Tracker) StepBack(ctx context.Context, windowID int64) error {
	entry, ok := t.store.PopTabHistory(windowID)
	if !ok {
		t.feed.Emit("history", "stepback_empty", map[string]any{"window_id": windowID})
		return nil
	}

	_, err := t.host.CreateTab(ctx, browser.CreateTabOptions{
		URL:      entry.URL,
		WindowID: entry.WindowID,
		Index:    entry.Index,
		Active:   true,
		Pinned:   entry.Pinned,
	})
	if err != nil {
		return types.NewError(types.CodeHostCall, "reopen closed tab", err)
	}
	return nil
}

// Refresh is part of the Strategy interface; the tracker has no external
// log to refresh.
func (t *Tracker) Refresh(ctx context.Context) error { return nil }
