package dispatch

import (
	"context"
	"encoding/json"

	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

const siteQueryLimit = 50

// reply sends one channel response; a dead port is reported to the feed
// and otherwise ignored, matching the no-envelope channel contract.
func (d *Dispatcher) reply(p *port.Port, v any) {
	if err := p.Send(v); err != nil {
		d.deps.Feed.Discard("dispatch", "channel reply", err)
	}
}

func (d *Dispatcher) channelTable() map[string]ChannelHandler {
	return map[string]ChannelHandler{
		"hello":             d.onHello,
		"addFrame":          d.onAddFrame,
		"focusFrame":        d.onFocusFrame,
		"updateLastCommand": d.onUpdateLastCommand,
		"commandHistory":    d.onCommandHistoryChannel,
		"history":           d.onHistory,
		"bookmarks":         d.onBookmarks,
		"topsites":          d.onTopSites,
		"buffers":           d.onBuffers,
		"sessions":          d.onSessionsChannel,
		"quickMarks":        d.onQuickMarks,
		"bookmarkPath":      d.onBookmarkPath,
		"editWithVim":       d.onEditWithVim,
		"httpRequest":       d.onHTTPRequestChannel,
		"parseRC":           d.onParseRC,
		"sendSettings":      d.onSendSettingsChannel,
	}
}

// onHello greets a newly connected context with the settings blob and the
// current enabled state.
func (d *Dispatcher) onHello(ctx context.Context, p *port.Port, msg *types.Message) {
	if err := d.deps.Settings.SendTo(p); err != nil {
		d.deps.Feed.Discard("dispatch", "hello settings", err)
	}
	d.reply(p, map[string]any{"action": "toggleEnabled", "enabled": d.deps.Store.Enabled()})
}

func (d *Dispatcher) onAddFrame(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		FrameID int64  `json:"frame_id"`
		URL     string `json:"url"`
		Top     bool   `json:"top"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "addFrame decode", err)
		return
	}
	tabID := p.TabID()
	if tabID == "" {
		return
	}
	d.deps.Store.AddFrame(tabID, state.Frame{ID: in.FrameID, URL: in.URL, Top: in.Top})
}

// onFocusFrame advances the tab's frame focus cursor and tells the tab's
// contexts which frame won. A tab with no registered frames stays quiet.
func (d *Dispatcher) onFocusFrame(ctx context.Context, p *port.Port, msg *types.Message) {
	tabID := p.TabID()
	frame, ok := d.deps.Store.FocusNextFrame(tabID)
	if !ok {
		return
	}
	for _, target := range d.deps.Ports.ByTab(tabID) {
		d.reply(target, map[string]any{"type": "focusFrame", "frame_id": frame.ID, "url": frame.URL})
	}
}

// onUpdateLastCommand records the command and rebroadcasts it so every
// context can repeat it.
func (d *Dispatcher) onUpdateLastCommand(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		Value string `json:"value"`
	}
	if err := msg.Decode(&in); err != nil || in.Value == "" {
		return
	}
	d.deps.Store.SetLastCommand(in.Value)
	d.deps.Ports.Broadcast(map[string]any{"type": "updateLastCommand", "value": in.Value}, nil)
}

func (d *Dispatcher) onCommandHistoryChannel(ctx context.Context, p *port.Port, msg *types.Message) {
	d.reply(p, map[string]any{"type": "commandHistory", "history": d.deps.Store.CommandHistory()})
}

func (d *Dispatcher) onHistory(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "history decode", err)
		return
	}
	if in.Limit <= 0 || in.Limit > siteQueryLimit {
		in.Limit = siteQueryLimit
	}
	sites, err := d.deps.Data.History(ctx, in.Query, in.Limit)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "history query", err)
		return
	}
	d.reply(p, map[string]any{"type": "history", "history": sites})
}

func (d *Dispatcher) onBookmarks(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		Query string `json:"query"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "bookmarks decode", err)
		return
	}
	sites, err := d.deps.Data.Bookmarks(ctx, in.Query)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "bookmarks query", err)
		return
	}
	d.reply(p, map[string]any{"type": "bookmarks", "bookmarks": sites})
}

func (d *Dispatcher) onTopSites(ctx context.Context, p *port.Port, msg *types.Message) {
	sites, err := d.deps.Data.TopSites(ctx)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "topsites query", err)
		return
	}
	d.reply(p, map[string]any{"type": "topsites", "sites": sites})
}

// onBuffers answers with every open tab, the completion source for buffer
// switching.
func (d *Dispatcher) onBuffers(ctx context.Context, p *port.Port, msg *types.Message) {
	d.reply(p, map[string]any{"type": "buffers", "buffers": d.deps.Store.ActiveTabs()})
}

func (d *Dispatcher) onSessionsChannel(ctx context.Context, p *port.Port, msg *types.Message) {
	saved := d.deps.Store.SavedSessions()
	summaries := make([]map[string]any, 0, len(saved))
	for _, name := range d.deps.Store.SavedSessionNames() {
		summaries = append(summaries, map[string]any{"name": name, "tabs": len(saved[name])})
	}
	d.reply(p, map[string]any{"type": "sessions", "sessions": summaries})
}

func (d *Dispatcher) onQuickMarks(ctx context.Context, p *port.Port, msg *types.Message) {
	d.reply(p, map[string]any{"type": "quickMarks", "marks": d.deps.Store.Quickmarks()})
}

func (d *Dispatcher) onBookmarkPath(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		Path []string `json:"path"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "bookmarkPath decode", err)
		return
	}
	sites, err := d.deps.Data.BookmarkPath(ctx, in.Path)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "bookmarkPath query", err)
		return
	}
	d.reply(p, map[string]any{"type": "bookmarkPath", "bookmarks": sites})
}

func (d *Dispatcher) onEditWithVim(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		Text string `json:"text"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "editWithVim decode", err)
		return
	}
	edited, err := d.deps.Editor.Edit(ctx, in.Text)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "external edit", err)
		return
	}
	d.reply(p, map[string]any{"type": "editWithVim", "text": edited})
}

// onHTTPRequestChannel fetches on the context's behalf and replies with the
// caller's correlation id, so the context can match the answer to its
// request.
func (d *Dispatcher) onHTTPRequestChannel(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		ID  json.RawMessage `json:"id"`
		URL string          `json:"url"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "httpRequest decode", err)
		return
	}
	text, err := d.deps.Fetch.Do(ctx, in.URL)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "httpRequest fetch", err)
		return
	}
	d.reply(p, map[string]any{"type": "httpRequest", "id": in.ID, "text": text})
}

func (d *Dispatcher) onParseRC(ctx context.Context, p *port.Port, msg *types.Message) {
	var in struct {
		Config string `json:"config"`
	}
	if err := msg.Decode(&in); err != nil {
		d.deps.Feed.Discard("dispatch", "parseRC decode", err)
		return
	}
	blob, err := d.deps.Settings.ParseRC(ctx, in.Config)
	if err != nil {
		d.deps.Feed.Discard("dispatch", "parseRC", err)
		return
	}
	d.reply(p, map[string]any{"type": "parseRC", "settings": blob})
}

func (d *Dispatcher) onSendSettingsChannel(ctx context.Context, p *port.Port, msg *types.Message) {
	if err := d.deps.Settings.SendTo(p); err != nil {
		d.deps.Feed.Discard("dispatch", "sendSettings reply", err)
	}
}
