// Package cdp implements browser.Host over the Chrome DevTools protocol.
// The coordinator attaches to a debuggable Chromium through a chromedp
// remote allocator, mirrors target lifecycle events into tab events, and
// drives tabs through the target and runtime domains.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

const eventQueueSize = 256

// Host drives one Chromium instance over CDP. It implements browser.Host;
// it does NOT implement browser.SessionLog, because DevTools keeps no
// closed-session store, so the capability probe selects the fallback
// tracker for this host.
type Host struct {
	cdpURL string

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	mu      sync.Mutex
	tabs    map[target.ID]*tabHandle
	windows map[target.ID]int64
	order   map[int64][]target.ID
	active  map[int64]target.ID
	subs    map[int]func(types.TabEvent)
	nextSub int

	queue  chan types.TabEvent
	stopCh chan struct{}
	doneCh chan struct{}
}

// tabHandle is one attached target's chromedp context.
type tabHandle struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHost creates an unconnected Host for a CDP endpoint URL.
func NewHost(cdpURL string) *Host {
	return &Host{
		cdpURL:  cdpURL,
		tabs:    make(map[target.ID]*tabHandle),
		windows: make(map[target.ID]int64),
		order:   make(map[int64][]target.ID),
		active:  make(map[int64]target.ID),
		subs:    make(map[int]func(types.TabEvent)),
		queue:   make(chan types.TabEvent, eventQueueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Connect attaches to the browser, seeds window bookkeeping from the
// current target list, and starts mirroring target lifecycle events.
func (h *Host) Connect(ctx context.Context) error {
	h.allocCtx, h.allocCancel = chromedp.NewRemoteAllocator(context.Background(), h.cdpURL)
	h.browserCtx, h.cancel = chromedp.NewContext(h.allocCtx)

	if err := chromedp.Run(h.browserCtx); err != nil {
		return types.NewError(types.CodeHostCall, "connect to browser at "+h.cdpURL, err)
	}

	if err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	})); err != nil {
		return types.NewError(types.CodeHostCall, "enable target discovery", err)
	}

	infos, err := chromedp.Targets(h.browserCtx)
	if err != nil {
		return types.NewError(types.CodeHostCall, "enumerate targets", err)
	}
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		h.observe(info.TargetID)
	}
	slog.Info("cdp host connected", "url", h.cdpURL, "pages", len(h.order))

	chromedp.ListenBrowser(h.browserCtx, h.onBrowserEvent)
	go h.pump()
	return nil
}

// Close detaches from the browser and stops the event pump.
func (h *Host) Close() {
	close(h.stopCh)
	<-h.doneCh

	h.mu.Lock()
	for _, handle := range h.tabs {
		handle.cancel()
	}
	h.tabs = make(map[target.ID]*tabHandle)
	h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	if h.allocCancel != nil {
		h.allocCancel()
	}
	slog.Info("cdp host closed")
}

// onBrowserEvent runs on chromedp's event goroutine; it forwards into the
// pump queue and never blocks.
func (h *Host) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo.Type != "page" {
			return
		}
		h.observe(e.TargetInfo.TargetID)
		h.enqueue(h.eventFor(types.TabCreated, e.TargetInfo.TargetID, e.TargetInfo.URL, e.TargetInfo.Title))
	case *target.EventTargetInfoChanged:
		if e.TargetInfo.Type != "page" {
			return
		}
		h.enqueue(h.eventFor(types.TabUpdated, e.TargetInfo.TargetID, e.TargetInfo.URL, e.TargetInfo.Title))
	case *target.EventTargetDestroyed:
		windowID, known := h.forget(e.TargetID)
		if !known {
			return
		}
		h.enqueue(types.TabEvent{Kind: types.TabRemoved, TabID: string(e.TargetID), WindowID: windowID})
	}
}

func (h *Host) enqueue(evt types.TabEvent) {
	select {
	case h.queue <- evt:
	default:
		slog.Warn("cdp event queue full, dropping", "kind", evt.Kind, "tab", evt.TabID)
	}
}

func (h *Host) pump() {
	defer close(h.doneCh)
	for {
		select {
		case <-h.stopCh:
			return
		case evt := <-h.queue:
			h.mu.Lock()
			fns := make([]func(types.TabEvent), 0, len(h.subs))
			for _, fn := range h.subs {
				fns = append(fns, fn)
			}
			h.mu.Unlock()
			for _, fn := range fns {
				fn(evt)
			}
		}
	}
}

// observe records a page target under its window, resolving the window id
// lazily. Unresolvable windows fall into window 0 rather than failing.
func (h *Host) observe(id target.ID) {
	windowID := h.windowFor(id)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.windows[id]; ok {
		return
	}
	h.windows[id] = windowID
	h.order[windowID] = append(h.order[windowID], id)
	if _, ok := h.active[windowID]; !ok {
		h.active[windowID] = id
	}
}

// forget drops a destroyed target's bookkeeping and reports its window.
func (h *Host) forget(id target.ID) (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	windowID, ok := h.windows[id]
	if !ok {
		return 0, false
	}
	delete(h.windows, id)

	seq := h.order[windowID]
	for i, tid := range seq {
		if tid == id {
			h.order[windowID] = append(seq[:i], seq[i+1:]...)
			break
		}
	}
	if len(h.order[windowID]) == 0 {
		delete(h.order, windowID)
		delete(h.active, windowID)
	} else if h.active[windowID] == id {
		h.active[windowID] = h.order[windowID][len(h.order[windowID])-1]
	}

	if handle, ok := h.tabs[id]; ok {
		handle.cancel()
		delete(h.tabs, id)
	}
	return windowID, true
}

// windowFor asks the browser which window a target lives in. The answer is
// cached on first resolution.
func (h *Host) windowFor(id target.ID) int64 {
	h.mu.Lock()
	if windowID, ok := h.windows[id]; ok {
		h.mu.Unlock()
		return windowID
	}
	h.mu.Unlock()

	var windowID cdpbrowser.WindowID
	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		windowID, _, err = cdpbrowser.GetWindowForTarget().WithTargetID(id).Do(ctx)
		return err
	}))
	if err != nil {
		slog.Debug("window lookup failed, using window 0", "target", id, "error", err)
		return 0
	}
	return int64(windowID)
}

func (h *Host) eventFor(kind types.TabEventKind, id target.ID, url, title string) types.TabEvent {
	tab := h.snapshot(id, url, title)
	return types.TabEvent{Kind: kind, TabID: string(id), WindowID: tab.WindowID, Tab: &tab}
}

// snapshot builds a tab record from bookkeeping plus the target's url and
// title. CDP has no pin concept, so Pinned is always false here; load
// state is reported complete because attachable page targets are.
func (h *Host) snapshot(id target.ID, url, title string) types.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()

	windowID := h.windows[id]
	index := 0
	for i, tid := range h.order[windowID] {
		if tid == id {
			index = i
			break
		}
	}
	return types.Tab{
		ID:       string(id),
		WindowID: windowID,
		Index:    index,
		URL:      url,
		Title:    title,
		Active:   h.active[windowID] == id,
		Status:   "complete",
	}
}

// Tabs implements browser.Host.
func (h *Host) Tabs(ctx context.Context) ([]types.Tab, error) {
	infos, err := chromedp.Targets(h.browserCtx)
	if err != nil {
		return nil, types.NewError(types.CodeHostCall, "enumerate targets", err)
	}

	out := make([]types.Tab, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		h.observe(info.TargetID)
		out = append(out, h.snapshot(info.TargetID, info.URL, info.Title))
	}
	return out, nil
}

// Tab implements browser.Host.
func (h *Host) Tab(ctx context.Context, tabID string) (types.Tab, error) {
	infos, err := chromedp.Targets(h.browserCtx)
	if err != nil {
		return types.Tab{}, types.NewError(types.CodeHostCall, "enumerate targets", err)
	}
	for _, info := range infos {
		if info.Type == "page" && string(info.TargetID) == tabID {
			h.observe(info.TargetID)
			return h.snapshot(info.TargetID, info.URL, info.Title), nil
		}
	}
	return types.Tab{}, types.NewError(types.CodeInvalidTarget, fmt.Sprintf("no tab %s", tabID), nil)
}

// CreateTab implements browser.Host. Index and Pinned are placement hints
// DevTools cannot honor; the tab opens in the target window's tab strip
// end instead.
func (h *Host) CreateTab(ctx context.Context, opts browser.CreateTabOptions) (types.Tab, error) {
	url := opts.URL
	if url == "" {
		url = "about:blank"
	}
	if opts.Pinned {
		slog.Debug("pinned hint ignored, devtools cannot pin tabs", "url", url)
	}

	var id target.ID
	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget(url).Do(ctx)
		return err
	}))
	if err != nil {
		return types.Tab{}, types.NewError(types.CodeHostCall, "create tab "+url, err)
	}

	h.observe(id)
	if opts.Active {
		if err := h.ActivateTab(ctx, string(id)); err != nil {
			slog.Debug("activate after create failed", "tab", id, "error", err)
		}
	}
	return h.snapshot(id, url, ""), nil
}

// CloseTab implements browser.Host.
func (h *Host) CloseTab(ctx context.Context, tabID string) error {
	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(target.ID(tabID)).Do(ctx)
	}))
	if err != nil {
		return types.NewError(types.CodeHostCall, "close tab "+tabID, err)
	}
	return nil
}

// ActivateTab implements browser.Host. Activation succeeds silently at the
// protocol level, so the resulting activated event is synthesized here.
func (h *Host) ActivateTab(ctx context.Context, tabID string) error {
	id := target.ID(tabID)
	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(id).Do(ctx)
	}))
	if err != nil {
		return types.NewError(types.CodeHostCall, "activate tab "+tabID, err)
	}

	h.mu.Lock()
	windowID := h.windows[id]
	h.active[windowID] = id
	h.mu.Unlock()

	h.enqueue(types.TabEvent{Kind: types.TabActivated, TabID: tabID, WindowID: windowID})
	return nil
}

// Subscribe implements browser.Host.
func (h *Host) Subscribe(fn func(types.TabEvent)) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// tabContext returns (creating on first use) the chromedp context attached
// to one target.
func (h *Host) tabContext(tabID string) (context.Context, error) {
	id := target.ID(tabID)

	h.mu.Lock()
	if handle, ok := h.tabs[id]; ok {
		h.mu.Unlock()
		return handle.ctx, nil
	}
	h.mu.Unlock()

	if _, err := h.Tab(context.Background(), tabID); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(h.allocCtx, chromedp.WithTargetID(id))
	handle := &tabHandle{id: id, ctx: tabCtx, cancel: tabCancel}

	h.mu.Lock()
	if existing, ok := h.tabs[id]; ok {
		h.mu.Unlock()
		tabCancel()
		return existing.ctx, nil
	}
	h.tabs[id] = handle
	h.mu.Unlock()
	return tabCtx, nil
}
