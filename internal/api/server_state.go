package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// TabsOutput lists the tabs the coordinator currently mirrors.
type TabsOutput struct {
	Body struct {
		Tabs []types.Tab `json:"tabs"`
	}
}

// TabHistoryOutput lists the per-window closed-tab stacks, newest first,
// keyed by decimal window id.
type TabHistoryOutput struct {
	Body struct {
		Windows map[string][]types.TabHistoryEntry `json:"windows"`
	}
}

// SessionsOutput describes restore state: which strategy is live, the
// native log cursor, and the user's saved sessions.
type SessionsOutput struct {
	Body struct {
		Mode         string              `json:"mode"`
		SessionIndex int                 `json:"session_index"`
		Native       []types.Session     `json:"native,omitempty"`
		Saved        map[string][]string `json:"saved,omitempty"`
	}
}

// PortsOutput lists the live context connections.
type PortsOutput struct {
	Body struct {
		Count int        `json:"count"`
		Ports []PortInfo `json:"ports"`
	}
}

// PortInfo is one connected context.
type PortInfo struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	TabID   string `json:"tab_id,omitempty"`
	FrameID int64  `json:"frame_id,omitempty"`
	Top     bool   `json:"top,omitempty"`
	URL     string `json:"url,omitempty"`
	Pending int    `json:"pending,omitempty"`
}

// MarksOutput holds quickmarks and the command and search rings.
type MarksOutput struct {
	Body struct {
		Quickmarks     map[string][]string `json:"quickmarks"`
		CommandHistory []string            `json:"command_history,omitempty"`
		SearchHistory  []string            `json:"search_history,omitempty"`
		LastCommand    string              `json:"last_command,omitempty"`
		LastSearch     string              `json:"last_search,omitempty"`
	}
}

// CountersOutput is a snapshot of the feed's event counters.
type CountersOutput struct {
	Body struct {
		Counters map[string]int64 `json:"counters"`
	}
}

func registerStateHandlers(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state-tabs",
		Method:      http.MethodGet,
		Path:        "/state/tabs",
		Summary:     "List mirrored tabs",
		Tags:        []string{"State"},
	}, func(ctx context.Context, _ *struct{}) (*TabsOutput, error) {
		out := &TabsOutput{}
		out.Body.Tabs = deps.Store.ActiveTabs()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-state-history",
		Method:      http.MethodGet,
		Path:        "/state/history",
		Summary:     "List per-window closed-tab stacks",
		Tags:        []string{"State"},
	}, func(ctx context.Context, _ *struct{}) (*TabHistoryOutput, error) {
		out := &TabHistoryOutput{}
		out.Body.Windows = make(map[string][]types.TabHistoryEntry)
		for _, w := range deps.Store.TabHistoryWindows() {
			out.Body.Windows[strconv.FormatInt(w, 10)] = deps.Store.TabHistory(w)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-state-sessions",
		Method:      http.MethodGet,
		Path:        "/state/sessions",
		Summary:     "Describe session restore state",
		Tags:        []string{"State"},
	}, func(ctx context.Context, _ *struct{}) (*SessionsOutput, error) {
		out := &SessionsOutput{}
		out.Body.Mode = deps.History.Mode()
		out.Body.SessionIndex = deps.Store.SessionIndex()
		out.Body.Native = deps.Store.NativeSessions()
		out.Body.Saved = deps.Store.SavedSessions()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-state-ports",
		Method:      http.MethodGet,
		Path:        "/state/ports",
		Summary:     "List connected contexts",
		Tags:        []string{"State"},
	}, func(ctx context.Context, _ *struct{}) (*PortsOutput, error) {
		out := &PortsOutput{}
		for _, p := range deps.Ports.All() {
			id := p.Identity()
			out.Body.Ports = append(out.Body.Ports, PortInfo{
				ID:      p.ID(),
				Kind:    id.Kind,
				TabID:   id.TabID,
				FrameID: id.FrameID,
				Top:     id.Top,
				URL:     id.URL,
				Pending: deps.Dispatcher.Pending(p.ID()),
			})
		}
		out.Body.Count = len(out.Body.Ports)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-state-marks",
		Method:      http.MethodGet,
		Path:        "/state/marks",
		Summary:     "List quickmarks and history rings",
		Tags:        []string{"State"},
	}, func(ctx context.Context, _ *struct{}) (*MarksOutput, error) {
		out := &MarksOutput{}
		out.Body.Quickmarks = deps.Store.Quickmarks()
		out.Body.CommandHistory = deps.Store.CommandHistory()
		out.Body.SearchHistory = deps.Store.SearchHistory()
		out.Body.LastCommand = deps.Store.LastCommand()
		out.Body.LastSearch = deps.Store.LastSearch()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-state-counters",
		Method:      http.MethodGet,
		Path:        "/state/counters",
		Summary:     "Snapshot event counters",
		Tags:        []string{"State"},
	}, func(ctx context.Context, _ *struct{}) (*CountersOutput, error) {
		out := &CountersOutput{}
		out.Body.Counters = deps.Feed.Counters()
		return out, nil
	})
}
