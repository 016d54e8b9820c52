package dispatch

import (
	"context"
	"fmt"

	"github.com/zchee/chromium-vim-sub001/internal/types"
)

func (d *Dispatcher) actionTable() map[string]ActionHandler {
	table := map[string]ActionHandler{
		"commandHistory":       d.onCommandHistoryAction,
		"updateLastSearch":     d.onUpdateLastSearch,
		"sendSettings":         d.onSendSettingsAction,
		"cancelAllWebRequests": d.onCancelAllWebRequests,
		"updateMarks":          d.onUpdateMarks,
		"toggleEnabled":        d.onToggleEnabled,
		"getBlacklistStatus":   d.onGetBlacklistStatus,
		"echoRequest":          d.onEchoRequest,
		"httpRequest":          d.onHTTPRequestAction,
		"updateTabIndices":     d.onUpdateTabIndices,
		"getTab":               d.onGetTab,
		"getSessions":          d.onGetSessions,
		"setSessions":          d.onSetSessions,
		"getLastUsedTabs":      d.onGetLastUsedTabs,
		"registerTab":          d.onRegisterTab,
	}

	// The remaining actions are context-to-context relays: the coordinator
	// forwards the payload to the target tab's other contexts and reports
	// how many received it. A tab with no live ports relays to zero, which
	// is a success, not an error.
	for _, tag := range []string{
		"hideHud", "nextCompletionResult", "deleteBackWord", "alert",
		"showCommandFrame", "hideCommandFrame", "callFind", "setFindIndex",
		"doIncSearch", "cancelIncSearch", "displayTabIndices", "isFrameVisible",
	} {
		table[tag] = d.relayAction
	}
	return table
}

// relayAction forwards the original payload to every port of the target
// tab except the sender's own. Failed sends are independent; the count
// reflects deliveries that worked.
func (d *Dispatcher) relayAction(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		TabID string `json:"tab_id"`
	}
	// tab_id is optional; the sender's own tab is the default target.
	_ = msg.Decode(&in)

	tabID := in.TabID
	if tabID == "" {
		tabID = sender.tabID()
	}
	if tabID == "" {
		return nil, types.NewError(types.CodeMalformedPayload, msg.Tag()+" needs a tab target", nil)
	}

	relayed := 0
	for _, p := range d.deps.Ports.ByTab(tabID) {
		if sender.Port != nil && p.ID() == sender.Port.ID() {
			continue
		}
		if err := p.Send(msg.Raw); err != nil {
			d.deps.Feed.Discard("dispatch", "relay "+msg.Tag(), err)
			continue
		}
		relayed++
	}
	return map[string]any{"relayed": relayed}, nil
}

// onCommandHistoryAction appends when a value is present and always
// answers with the current ring.
func (d *Dispatcher) onCommandHistoryAction(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		Value string `json:"value"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}
	if in.Value != "" {
		d.deps.Store.AppendCommandHistory(in.Value)
	}
	return map[string]any{"history": d.deps.Store.CommandHistory()}, nil
}

func (d *Dispatcher) onUpdateLastSearch(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		Value string `json:"value"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}
	if in.Value == "" {
		return nil, types.NewError(types.CodeMalformedPayload, "updateLastSearch needs a value", nil)
	}
	d.deps.Store.SetLastSearch(in.Value)
	d.deps.Store.AppendSearchHistory(in.Value)
	return nil, nil
}

func (d *Dispatcher) onSendSettingsAction(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	d.deps.Settings.Broadcast()
	return nil, nil
}

func (d *Dispatcher) onCancelAllWebRequests(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	return map[string]any{"cancelled": d.deps.Fetch.CancelAll()}, nil
}

// onUpdateMarks toggles one quickmark URL, or replaces the whole mark map
// when the payload carries one.
func (d *Dispatcher) onUpdateMarks(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		Mark  string              `json:"mark"`
		URL   string              `json:"url"`
		Marks map[string][]string `json:"marks"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}

	switch {
	case in.Marks != nil:
		d.deps.Store.ReplaceQuickmarks(in.Marks)
	case in.Mark != "" && in.URL != "":
		d.deps.Store.ToggleQuickmark(in.Mark, in.URL)
	default:
		return nil, types.NewError(types.CodeMalformedPayload, "updateMarks needs mark+url or marks", nil)
	}
	return map[string]any{"marks": d.deps.Store.Quickmarks()}, nil
}

// onToggleEnabled toggles one tab when the payload names one (or the
// sender belongs to a tab), and the whole process otherwise.
func (d *Dispatcher) onToggleEnabled(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		TabID  string `json:"tab_id"`
		Global bool   `json:"global"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}

	tabID := in.TabID
	if tabID == "" && !in.Global {
		tabID = sender.tabID()
	}

	if !in.Global && tabID != "" {
		if err := d.deps.Broadcast.ToggleTab(ctx, tabID); err != nil {
			d.deps.Feed.Discard("dispatch", "toggle tab", err)
		}
		return map[string]any{"enabled": d.deps.Broadcast.Enabled(), "tab_id": tabID}, nil
	}

	enabled, err := d.deps.Broadcast.ToggleGlobal(ctx)
	if err != nil {
		// The flag flipped; per-tab delivery failures are already on the
		// feed and must not fail the toggle itself.
		d.deps.Feed.Discard("dispatch", "toggle fan-out", err)
	}
	return map[string]any{"enabled": enabled}, nil
}

func (d *Dispatcher) onGetBlacklistStatus(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}

	url := in.URL
	if url == "" {
		if tab, ok := d.deps.Store.ActiveTab(sender.tabID()); ok {
			url = tab.URL
		}
	}
	if url == "" {
		return nil, types.NewError(types.CodeMalformedPayload, "getBlacklistStatus needs a url", nil)
	}
	return map[string]any{"blacklisted": d.deps.Broadcast.Blacklisted(url)}, nil
}

// onEchoRequest answers with the payload it was given. Contexts use it to
// probe that their channel to the coordinator is alive.
func (d *Dispatcher) onEchoRequest(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var payload map[string]any
	if err := msg.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (d *Dispatcher) onHTTPRequestAction(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}
	text, err := d.deps.Fetch.Do(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text": text}, nil
}

// onUpdateTabIndices recomputes every window's tab ordering and pushes
// each tab its position, so displayed indices stay dense after closes and
// moves.
func (d *Dispatcher) onUpdateTabIndices(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	updated := 0
	for _, tab := range d.deps.Store.ActiveTabs() {
		window := d.deps.Store.ActiveTabsInWindow(tab.WindowID)
		position := 0
		for i, w := range window {
			if w.ID == tab.ID {
				position = i + 1
				break
			}
		}
		for _, p := range d.deps.Ports.ByTab(tab.ID) {
			if err := p.Send(map[string]any{"action": "updateTabIndices", "index": position, "total": len(window)}); err != nil {
				d.deps.Feed.Discard("dispatch", "push tab index", err)
				continue
			}
			updated++
		}
	}
	return map[string]any{"updated": updated}, nil
}

func (d *Dispatcher) onGetTab(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		TabID string `json:"tab_id"`
	}
	_ = msg.Decode(&in)

	tabID := in.TabID
	if tabID == "" {
		tabID = sender.tabID()
	}
	if tabID == "" {
		return nil, types.NewError(types.CodeMalformedPayload, "getTab needs a tab", nil)
	}

	if tab, ok := d.deps.Store.ActiveTab(tabID); ok {
		return tab, nil
	}
	// Not yet observed; ask the host directly before declaring it gone.
	tab, err := d.deps.Host.Tab(ctx, tabID)
	if err != nil {
		return nil, types.NewError(types.CodeInvalidTarget, fmt.Sprintf("tab %s", tabID), err)
	}
	return tab, nil
}

func (d *Dispatcher) onGetSessions(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	return map[string]any{"sessions": d.deps.Store.SavedSessions()}, nil
}

// onSetSessions stores one named session or replaces the whole map. Both
// paths write through to the durable record.
func (d *Dispatcher) onSetSessions(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		Name     string              `json:"name"`
		URLs     []string            `json:"urls"`
		Sessions map[string][]string `json:"sessions"`
	}
	if err := msg.Decode(&in); err != nil {
		return nil, err
	}

	switch {
	case in.Sessions != nil:
		if err := d.deps.Store.ReplaceSavedSessions(in.Sessions); err != nil {
			return nil, err
		}
	case in.Name != "":
		if err := d.deps.Store.SetSavedSession(in.Name, in.URLs); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewError(types.CodeMalformedPayload, "setSessions needs a name or a session map", nil)
	}
	return map[string]any{"sessions": d.deps.Store.SavedSessions()}, nil
}

// onGetLastUsedTabs resolves the activation-ordered id list to live
// snapshots, dropping ids whose tabs have since closed.
func (d *Dispatcher) onGetLastUsedTabs(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	ids := d.deps.Store.LastUsedTabs()
	tabs := make([]any, 0, len(ids))
	for _, id := range ids {
		if tab, ok := d.deps.Store.ActiveTab(id); ok {
			tabs = append(tabs, tab)
		}
	}
	return map[string]any{"tabs": tabs}, nil
}

// onRegisterTab lets a context announce the tab it lives in. The snapshot
// is re-queried from the host; a tab that vanished before the query
// resolves is an invalid target, not a stale upsert.
func (d *Dispatcher) onRegisterTab(ctx context.Context, msg *types.Message, sender Sender) (any, error) {
	var in struct {
		TabID string `json:"tab_id"`
	}
	_ = msg.Decode(&in)

	tabID := in.TabID
	if tabID == "" {
		tabID = sender.tabID()
	}
	if tabID == "" {
		return nil, types.NewError(types.CodeMalformedPayload, "registerTab needs a tab", nil)
	}

	tab, err := d.deps.Host.Tab(ctx, tabID)
	if err != nil {
		return nil, types.NewError(types.CodeInvalidTarget, fmt.Sprintf("tab %s", tabID), err)
	}
	d.deps.Store.UpsertActiveTab(tab)
	d.deps.Store.TouchTab(tab.ID)
	return tab, nil
}
