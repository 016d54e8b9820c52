package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// NativeAdapter is the restore strategy for hosts that keep their own
// closed-session log. The store mirrors the log; the restore cursor walks
// the mirror a slot at a time.
type NativeAdapter struct {
	host  browser.Host
	log   browser.SessionLog
	store *state.Store
	feed  *events.Feed

	// retryFailed keeps the cursor on a slot whose restore failed so the
	// next attempt hits the same session again. Off by default: the
	// cursor then only moves forward and each slot is tried at most
	// once.
	retryFailed bool

	mu          sync.Mutex
	unsubscribe func()
	stopOnce    sync.Once
}

// NewNativeAdapter creates the adapter over a probed session log.
func NewNativeAdapter(host browser.Host, log browser.SessionLog, store *state.Store, feed *events.Feed, retryFailed bool) *NativeAdapter {
	return &NativeAdapter{
		host:        host,
		log:         log,
		store:       store,
		feed:        feed,
		retryFailed: retryFailed,
	}
}

// Name identifies the strategy in logs and the ops surface.
func (a *NativeAdapter) Name() string { return "native" }

// Start performs the initial refresh and arranges for the mirror to stay
// current. A log that pushes change notifications drives refreshes
// directly; otherwise every tab removal grows the log by one, so removal
// events stand in as the refresh trigger.
func (a *NativeAdapter) Start(ctx context.Context) error {
	if err := a.Refresh(ctx); err != nil {
		return err
	}

	refresh := func() {
		if err := a.Refresh(context.Background()); err != nil {
			a.feed.Discard("history", "session log refresh", err)
		}
	}
	notified := false
	if notifier, ok := a.log.(browser.ClosedChangeNotifier); ok {
		a.unsubscribe = notifier.OnClosedChanged(refresh)
		notified = true
	} else {
		a.unsubscribe = a.host.Subscribe(func(evt types.TabEvent) {
			if evt.Kind == types.TabRemoved {
				refresh()
			}
		})
	}
	slog.Info("native session adapter started", "retry_failed", a.retryFailed, "change_notify", notified)
	return nil
}

// Stop unsubscribes from log change notifications.
func (a *NativeAdapter) Stop() {
	a.stopOnce.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
	})
}

// Refresh re-reads the host log, keeps single-tab entries only, preserves
// host order, and resets the restore cursor to the newest entry.
func (a *NativeAdapter) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	list, err := a.log.RecentlyClosed(ctx)
	if err != nil {
		return types.NewError(types.CodeHostCall, "read closed-session log", err)
	}

	filtered := make([]types.Session, 0, len(list))
	for _, sess := range list {
		// Window entries carry no URL of their own.
		if sess.URL == "" {
			continue
		}
		filtered = append(filtered, sess)
	}
	a.store.SetNativeSessions(filtered)
	return nil
}

// StepBack restores the session under the cursor. The cursor advances when
// the slot is handed out, before the host call, so a failure does not make
// the slot eligible again unless the retry policy is on. A cursor past the
// end of the mirror is a logged no-op.
//
// windowID is accepted for interface symmetry; the host log is global.
func (a *NativeAdapter) StepBack(ctx context.Context, windowID int64) error {
	sess, idx, ok := a.store.NextNativeSession()
	if !ok {
		a.feed.Emit("history", "stepback_past_end", map[string]any{"index": idx})
		return nil
	}

	if err := a.log.RestoreClosed(ctx, sess.ID); err != nil {
		if a.retryFailed {
			a.store.RewindSessionSlot(idx)
		}
		return types.NewError(types.CodeHostCall, "restore closed session", err)
	}
	return nil
}
