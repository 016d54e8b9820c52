// Package dispatch routes inbound messages to named handlers. One static
// table per entry point is built at construction: persistent-channel
// payloads tagged "type" reply over their own port at the handler's
// discretion; one-shot payloads tagged "action" resolve exactly one
// response. Construction fails if any declared tag lacks a handler, so a
// missing handler is caught at startup rather than at dispatch time.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/zchee/chromium-vim-sub001/internal/broadcast"
	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/fetch"
	"github.com/zchee/chromium-vim-sub001/internal/history"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/settings"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// ChannelTags are the persistent-channel message types the coordinator
// accepts.
var ChannelTags = []string{
	"hello", "addFrame", "focusFrame", "updateLastCommand", "commandHistory",
	"history", "bookmarks", "topsites", "buffers", "sessions", "quickMarks",
	"bookmarkPath", "editWithVim", "httpRequest", "parseRC", "sendSettings",
}

// ActionTags are the one-shot actions the coordinator accepts.
var ActionTags = []string{
	"hideHud", "commandHistory", "updateLastSearch", "sendSettings",
	"cancelAllWebRequests", "updateMarks", "nextCompletionResult",
	"deleteBackWord", "toggleEnabled", "getBlacklistStatus", "alert",
	"showCommandFrame", "hideCommandFrame", "callFind", "setFindIndex",
	"doIncSearch", "cancelIncSearch", "echoRequest", "displayTabIndices",
	"isFrameVisible", "httpRequest", "updateTabIndices", "getTab",
	"getSessions", "setSessions", "getLastUsedTabs", "registerTab",
}

// Sender identifies who asked. Port is nil for one-shot callers that are
// not connected over a persistent channel.
type Sender struct {
	Port  *port.Port
	TabID string
}

func (s Sender) tabID() string {
	if s.TabID != "" {
		return s.TabID
	}
	if s.Port != nil {
		return s.Port.TabID()
	}
	return ""
}

// DispatchContext is the per-invocation record: which action is running,
// for whom, and how to cancel it when the sender's port goes away.
type DispatchContext struct {
	Action string
	Sender Sender
	cancel context.CancelFunc
}

// ChannelHandler consumes one persistent-channel message. Replies, if any,
// go back over p; zero, one, or many replies are all legitimate.
type ChannelHandler func(ctx context.Context, p *port.Port, msg *types.Message)

// ActionHandler resolves one one-shot message to a single result.
type ActionHandler func(ctx context.Context, msg *types.Message, sender Sender) (any, error)

// Deps are the collaborators handlers reach.
type Deps struct {
	Store     *state.Store
	Host      browser.Host
	Ports     *port.Registry
	History   *history.Service
	Broadcast *broadcast.Controller
	Settings  *settings.Service
	Fetch     *fetch.Service
	Data      browser.BrowserData
	Editor    browser.Editor
	Feed      *events.Feed
}

// Dispatcher routes messages. Safe for concurrent use; the tables are
// immutable after construction.
type Dispatcher struct {
	deps    Deps
	channel map[string]ChannelHandler
	oneShot map[string]ActionHandler

	mu      sync.Mutex
	pending map[string]map[*DispatchContext]struct{}
}

// NewDispatcher builds both tables and verifies every declared tag has a
// handler.
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Data == nil {
		deps.Data = browser.EmptyData{}
	}
	if deps.Editor == nil {
		deps.Editor = browser.NoEditor{}
	}

	d := &Dispatcher{
		deps:    deps,
		pending: make(map[string]map[*DispatchContext]struct{}),
	}
	d.channel = d.channelTable()
	d.oneShot = d.actionTable()

	for _, tag := range ChannelTags {
		if _, ok := d.channel[tag]; !ok {
			return nil, fmt.Errorf("dispatch: channel tag %q has no handler", tag)
		}
	}
	for _, tag := range ActionTags {
		if _, ok := d.oneShot[tag]; !ok {
			return nil, fmt.Errorf("dispatch: action tag %q has no handler", tag)
		}
	}
	if len(d.channel) != len(ChannelTags) || len(d.oneShot) != len(ActionTags) {
		return nil, fmt.Errorf("dispatch: table holds undeclared tags")
	}
	return d, nil
}

// DispatchChannel routes one persistent-channel message. Unknown types are
// counted and dropped; handler panics are recovered and dropped, since the
// channel envelope has no failure shape to deliver.
func (d *Dispatcher) DispatchChannel(p *port.Port, msg *types.Message) {
	tag := msg.Tag()
	handler, ok := d.channel[tag]
	if !ok {
		d.deps.Feed.Emit("dispatch", "unknown_type", map[string]any{"type": tag})
		return
	}

	ctx, dc := d.track(tag, Sender{Port: p})
	defer d.untrack(dc)
	defer func() {
		if r := recover(); r != nil {
			d.deps.Feed.Emit("dispatch", "handler_panic", map[string]any{
				"type":  tag,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	handler(ctx, p, msg)
}

// DispatchAction routes one one-shot message. The second return is false
// when no handler exists for the action; nothing is invoked in that case.
// Handler faults, panics included, come back as structured failures.
func (d *Dispatcher) DispatchAction(ctx context.Context, msg *types.Message, sender Sender) (resp types.Response, handled bool) {
	tag := msg.Tag()
	handler, ok := d.oneShot[tag]
	if !ok {
		d.deps.Feed.Emit("dispatch", "unknown_action", map[string]any{"action": tag})
		return types.Response{}, false
	}

	handlerCtx, dc := d.trackWith(ctx, tag, sender)
	defer d.untrack(dc)
	defer func() {
		if r := recover(); r != nil {
			d.deps.Feed.Emit("dispatch", "handler_panic", map[string]any{
				"action": tag,
				"panic":  fmt.Sprint(r),
			})
			resp, handled = types.Fail(fmt.Errorf("%s: handler fault", tag)), true
		}
	}()

	result, err := handler(handlerCtx, msg, sender)
	if err != nil {
		d.deps.Feed.Emit("dispatch", "handler_error", map[string]any{
			"action": tag,
			"error":  err.Error(),
		})
		return types.Fail(err), true
	}
	return types.OK(result), true
}

// track registers a DispatchContext for a port-bound invocation so a
// disconnect can cancel it. Senders without a port are not tracked.
func (d *Dispatcher) track(action string, sender Sender) (context.Context, *DispatchContext) {
	return d.trackWith(context.Background(), action, sender)
}

func (d *Dispatcher) trackWith(parent context.Context, action string, sender Sender) (context.Context, *DispatchContext) {
	if sender.Port == nil {
		return parent, nil
	}

	ctx, cancel := context.WithCancel(parent)
	dc := &DispatchContext{Action: action, Sender: sender, cancel: cancel}

	id := sender.Port.ID()
	d.mu.Lock()
	set := d.pending[id]
	if set == nil {
		set = make(map[*DispatchContext]struct{})
		d.pending[id] = set
	}
	set[dc] = struct{}{}
	d.mu.Unlock()
	return ctx, dc
}

func (d *Dispatcher) untrack(dc *DispatchContext) {
	if dc == nil {
		return
	}
	id := dc.Sender.Port.ID()
	d.mu.Lock()
	if set, ok := d.pending[id]; ok {
		delete(set, dc)
		if len(set) == 0 {
			delete(d.pending, id)
		}
	}
	d.mu.Unlock()
	dc.cancel()
}

// PortClosed discards every DispatchContext bound to a dead port. In-flight
// host calls are not interrupted beyond context cancellation; their results
// are liveness-checked before application anyway.
func (d *Dispatcher) PortClosed(portID string) {
	d.mu.Lock()
	set := d.pending[portID]
	delete(d.pending, portID)
	d.mu.Unlock()

	for dc := range set {
		dc.cancel()
	}
	if len(set) > 0 {
		d.deps.Feed.Emit("dispatch", "contexts_discarded", map[string]any{
			"port":  portID,
			"count": len(set),
		})
	}
}

// Pending reports how many DispatchContexts a port currently has in flight.
func (d *Dispatcher) Pending(portID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending[portID])
}
