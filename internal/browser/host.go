package browser

import (
	"context"
	"encoding/json"

	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// IconState selects the indicator shown for a tab.
type IconState string

const (
	IconEnabled  IconState = "enabled"
	IconDisabled IconState = "disabled"
)

// CreateTabOptions describes the tab a restore or open operation wants.
// Index and WindowID are hints; hosts place the tab as close as they can.
type CreateTabOptions struct {
	URL      string
	WindowID int64
	Index    int
	Active   bool
	Pinned   bool
}

// Host is the privileged browser surface the coordinator drives.
//
// Implementations translate these calls onto a concrete automation protocol.
// Everything above this boundary is protocol-agnostic: call failures surface
// as HOST_CALL coded errors, stale identifiers as INVALID_TARGET.
type Host interface {
	// Tabs enumerates all open page tabs.
	Tabs(ctx context.Context) ([]types.Tab, error)

	// Tab fetches a fresh snapshot of one tab.
	Tab(ctx context.Context, tabID string) (types.Tab, error)

	// CreateTab opens a new tab.
	CreateTab(ctx context.Context, opts CreateTabOptions) (types.Tab, error)

	// CloseTab closes a tab.
	CloseTab(ctx context.Context, tabID string) error

	// ActivateTab brings a tab to the foreground of its window.
	ActivateTab(ctx context.Context, tabID string) error

	// Subscribe registers a tab lifecycle listener and returns its
	// unregister func. Listeners run on the host's event goroutine and
	// must not block.
	Subscribe(fn func(types.TabEvent)) (unsubscribe func())

	// Inject evaluates script in a tab's page context, also arming it for
	// future documents in that tab where the protocol allows.
	Inject(ctx context.Context, tabID, script string) error

	// Eval evaluates an expression in a tab and returns its JSON result.
	Eval(ctx context.Context, tabID, expr string) (json.RawMessage, error)

	// SetIcon updates the per-tab indicator.
	SetIcon(ctx context.Context, tabID string, state IconState) error
}

// SessionLog is an optional Host capability: hosts that keep a log of
// recently closed sessions expose it by additionally implementing this
// interface. Hosts without it leave closed-tab tracking to the fallback
// tracker.
type SessionLog interface {
	// RecentlyClosed returns the host's closed-session log, newest first.
	RecentlyClosed(ctx context.Context) ([]types.Session, error)

	// RestoreClosed reopens the session with the given id.
	RestoreClosed(ctx context.Context, sessionID string) error
}

// ClosedChangeNotifier is a further optional capability of a SessionLog:
// a push signal that the log changed. Logs without it are still usable;
// the consumer re-reads the log on tab-removal events instead.
type ClosedChangeNotifier interface {
	// OnClosedChanged registers a listener fired whenever the log changes
	// and returns its unregister func.
	OnClosedChanged(fn func()) (unsubscribe func())
}

// ProbeSessionLog performs the one-time capability probe. The result is
// decided once at startup and holds for the process lifetime.
func ProbeSessionLog(h Host) (SessionLog, bool) {
	sl, ok := h.(SessionLog)
	return sl, ok
}
