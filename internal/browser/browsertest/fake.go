// Package browsertest provides scriptable in-memory hosts for exercising
// coordinator components without a browser.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// FakeHost is an in-memory browser.Host. Mutations fire subscriber events
// synchronously on the calling goroutine.
type FakeHost struct {
	mu          sync.Mutex
	tabs        map[string]types.Tab
	subscribers map[int]func(types.TabEvent)
	nextSub     int
	nextTab     int

	created  []browser.CreateTabOptions
	injected map[string][]string
	evals    map[string][]string
	icons    map[string]browser.IconState

	// TabErr, CreateErr, InjectErr and EvalErr, when set, fail the
	// corresponding call.
	TabErr    error
	CreateErr error
	InjectErr error
	EvalErr   error

	// InjectErrFor fails Inject for specific tab ids, standing in for
	// privileged pages that reject script evaluation.
	InjectErrFor map[string]error

	// EvalResult is returned by Eval when EvalErr is nil.
	EvalResult json.RawMessage
}

// NewFakeHost creates an empty FakeHost.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		tabs:         make(map[string]types.Tab),
		subscribers:  make(map[int]func(types.TabEvent)),
		injected:     make(map[string][]string),
		evals:        make(map[string][]string),
		icons:        make(map[string]browser.IconState),
		InjectErrFor: make(map[string]error),
	}
}

// AddTab seeds a tab and fires a created event.
func (h *FakeHost) AddTab(tab types.Tab) {
	h.mu.Lock()
	h.tabs[tab.ID] = tab
	h.mu.Unlock()
	h.emit(types.TabEvent{Kind: types.TabCreated, TabID: tab.ID, WindowID: tab.WindowID, Tab: &tab})
}

// UpdateTab replaces a tab snapshot and fires an updated event. withTab
// controls whether the event carries the snapshot or forces a re-query.
func (h *FakeHost) UpdateTab(tab types.Tab, withTab bool) {
	h.mu.Lock()
	h.tabs[tab.ID] = tab
	h.mu.Unlock()
	evt := types.TabEvent{Kind: types.TabUpdated, TabID: tab.ID, WindowID: tab.WindowID}
	if withTab {
		evt.Tab = &tab
	}
	h.emit(evt)
}

// RemoveTab deletes a tab and fires a removed event.
func (h *FakeHost) RemoveTab(tabID string) {
	h.mu.Lock()
	tab, ok := h.tabs[tabID]
	delete(h.tabs, tabID)
	h.mu.Unlock()
	evt := types.TabEvent{Kind: types.TabRemoved, TabID: tabID}
	if ok {
		evt.WindowID = tab.WindowID
	}
	h.emit(evt)
}

// ActivateEvent fires an activated event without changing state.
func (h *FakeHost) ActivateEvent(tabID string, windowID int64) {
	h.emit(types.TabEvent{Kind: types.TabActivated, TabID: tabID, WindowID: windowID})
}

func (h *FakeHost) emit(evt types.TabEvent) {
	h.mu.Lock()
	fns := make([]func(types.TabEvent), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

// Tabs implements browser.Host.
func (h *FakeHost) Tabs(ctx context.Context) ([]types.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Tab, 0, len(h.tabs))
	for _, tab := range h.tabs {
		out = append(out, tab)
	}
	return out, nil
}

// Tab implements browser.Host.
func (h *FakeHost) Tab(ctx context.Context, tabID string) (types.Tab, error) {
	if h.TabErr != nil {
		return types.Tab{}, h.TabErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	tab, ok := h.tabs[tabID]
	if !ok {
		return types.Tab{}, types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
	}
	return tab, nil
}

// CreateTab implements browser.Host and records the request.
func (h *FakeHost) CreateTab(ctx context.Context, opts browser.CreateTabOptions) (types.Tab, error) {
	if h.CreateErr != nil {
		return types.Tab{}, h.CreateErr
	}
	h.mu.Lock()
	h.created = append(h.created, opts)
	h.nextTab++
	tab := types.Tab{
		ID:       fmt.Sprintf("created-%d", h.nextTab),
		WindowID: opts.WindowID,
		Index:    opts.Index,
		URL:      opts.URL,
		Active:   opts.Active,
		Pinned:   opts.Pinned,
		Status:   "complete",
	}
	h.tabs[tab.ID] = tab
	h.mu.Unlock()
	h.emit(types.TabEvent{Kind: types.TabCreated, TabID: tab.ID, WindowID: tab.WindowID, Tab: &tab})
	return tab, nil
}

// CloseTab implements browser.Host.
func (h *FakeHost) CloseTab(ctx context.Context, tabID string) error {
	h.mu.Lock()
	_, ok := h.tabs[tabID]
	h.mu.Unlock()
	if !ok {
		return types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
	}
	h.RemoveTab(tabID)
	return nil
}

// ActivateTab implements browser.Host.
func (h *FakeHost) ActivateTab(ctx context.Context, tabID string) error {
	h.mu.Lock()
	tab, ok := h.tabs[tabID]
	h.mu.Unlock()
	if !ok {
		return types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
	}
	h.ActivateEvent(tabID, tab.WindowID)
	return nil
}

// Subscribe implements browser.Host.
func (h *FakeHost) Subscribe(fn func(types.TabEvent)) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

// Inject implements browser.Host and records the script per tab.
func (h *FakeHost) Inject(ctx context.Context, tabID, script string) error {
	if h.InjectErr != nil {
		return h.InjectErr
	}
	if err := h.InjectErrFor[tabID]; err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[tabID]; !ok {
		return types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
	}
	h.injected[tabID] = append(h.injected[tabID], script)
	return nil
}

// Eval implements browser.Host and records the expression per tab.
func (h *FakeHost) Eval(ctx context.Context, tabID, expr string) (json.RawMessage, error) {
	if h.EvalErr != nil {
		return nil, h.EvalErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[tabID]; !ok {
		return nil, types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
	}
	h.evals[tabID] = append(h.evals[tabID], expr)
	if h.EvalResult != nil {
		return h.EvalResult, nil
	}
	return json.RawMessage(`null`), nil
}

// SetIcon implements browser.Host and records the state per tab.
func (h *FakeHost) SetIcon(ctx context.Context, tabID string, state browser.IconState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[tabID]; !ok {
		return types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
	}
	h.icons[tabID] = state
	return nil
}

// CreatedTabs returns every CreateTab request seen.
func (h *FakeHost) CreatedTabs() []browser.CreateTabOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]browser.CreateTabOptions, len(h.created))
	copy(out, h.created)
	return out
}

// Injected returns the scripts injected into a tab.
func (h *FakeHost) Injected(tabID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.injected[tabID]))
	copy(out, h.injected[tabID])
	return out
}

// Evals returns the expressions evaluated in a tab.
func (h *FakeHost) Evals(tabID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.evals[tabID]))
	copy(out, h.evals[tabID])
	return out
}

// Icon returns the last icon state set for a tab.
func (h *FakeHost) Icon(tabID string) (browser.IconState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.icons[tabID]
	return state, ok
}

// FakeSessionHost is a FakeHost that additionally implements
// browser.SessionLog and browser.ClosedChangeNotifier, so the capability
// probe selects the native adapter and refreshes ride push notifications.
type FakeSessionHost struct {
	*FakeHost

	mu        sync.Mutex
	sessions  []types.Session
	restored  []string
	listeners map[int]func()
	nextSub   int

	// RestoreErr, when set, fails every RestoreClosed call.
	RestoreErr error
}

// NewFakeSessionHost creates a FakeSessionHost with an empty log.
func NewFakeSessionHost() *FakeSessionHost {
	return &FakeSessionHost{
		FakeHost:  NewFakeHost(),
		listeners: make(map[int]func()),
	}
}

// SetSessions replaces the closed-session log and notifies listeners.
func (h *FakeSessionHost) SetSessions(list []types.Session) {
	h.mu.Lock()
	h.sessions = make([]types.Session, len(list))
	copy(h.sessions, list)
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RecentlyClosed implements browser.SessionLog.
func (h *FakeSessionHost) RecentlyClosed(ctx context.Context) ([]types.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Session, len(h.sessions))
	copy(out, h.sessions)
	return out, nil
}

// RestoreClosed implements browser.SessionLog and records the id.
func (h *FakeSessionHost) RestoreClosed(ctx context.Context, sessionID string) error {
	if h.RestoreErr != nil {
		return h.RestoreErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sess := range h.sessions {
		if sess.ID == sessionID {
			h.restored = append(h.restored, sessionID)
			return nil
		}
	}
	return types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no session %s", sessionID), nil)
}

// OnClosedChanged implements browser.ClosedChangeNotifier.
func (h *FakeSessionHost) OnClosedChanged(fn func()) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.listeners[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Restored returns the session ids passed to RestoreClosed.
func (h *FakeSessionHost) Restored() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.restored))
	copy(out, h.restored)
	return out
}

// FakeQuietSessionHost keeps a closed-session log but implements no change
// notification, standing in for hosts whose log can only be polled. Its
// tab removals feed the log, matching how real hosts grow theirs.
type FakeQuietSessionHost struct {
	*FakeHost

	mu       sync.Mutex
	sessions []types.Session
	restored []string

	// RestoreErr, when set, fails every RestoreClosed call.
	RestoreErr error
}

// NewFakeQuietSessionHost creates a FakeQuietSessionHost with an empty log.
func NewFakeQuietSessionHost() *FakeQuietSessionHost {
	return &FakeQuietSessionHost{FakeHost: NewFakeHost()}
}

// SetSessions replaces the closed-session log without any notification.
func (h *FakeQuietSessionHost) SetSessions(list []types.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = make([]types.Session, len(list))
	copy(h.sessions, list)
}

// RemoveTab deletes the tab, prepends it to the session log, and fires the
// removed event last, the order a real host follows.
func (h *FakeQuietSessionHost) RemoveTab(tabID string) {
	if tab, err := h.Tab(context.Background(), tabID); err == nil {
		h.mu.Lock()
		h.sessions = append([]types.Session{{ID: "sess-" + tabID, Title: tab.Title, URL: tab.URL}}, h.sessions...)
		h.mu.Unlock()
	}
	h.FakeHost.RemoveTab(tabID)
}

// RecentlyClosed implements browser.SessionLog.
func (h *FakeQuietSessionHost) RecentlyClosed(ctx context.Context) ([]types.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Session, len(h.sessions))
	copy(out, h.sessions)
	return out, nil
}

// RestoreClosed implements browser.SessionLog and records the id.
func (h *FakeQuietSessionHost) RestoreClosed(ctx context.Context, sessionID string) error {
	if h.RestoreErr != nil {
		return h.RestoreErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sess := range h.sessions {
		if sess.ID == sessionID {
			h.restored = append(h.restored, sessionID)
			return nil
		}
	}
	return types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no session %s", sessionID), nil)
}

// Restored returns the session ids passed to RestoreClosed.
func (h *FakeQuietSessionHost) Restored() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.restored))
	copy(out, h.restored)
	return out
}
