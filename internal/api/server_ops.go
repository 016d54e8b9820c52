package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RestoreInput names the window whose most recently closed tab should come
// back. Window 0 is a real window id under some hosts, so the field is
// required rather than defaulted.
type RestoreInput struct {
	Body struct {
		WindowID int64 `json:"window_id"`
	}
}

// RestoreOutput reports the restore strategy that handled the step.
type RestoreOutput struct {
	Body struct {
		Mode string `json:"mode"`
	}
}

// RefreshOutput reports the session snapshot refresh result.
type RefreshOutput struct {
	Body struct {
		Mode string `json:"mode"`
	}
}

// ToggleInput optionally names a single tab; without one the global flag
// flips and every eligible tab is notified.
type ToggleInput struct {
	Body struct {
		TabID string `json:"tab_id,omitempty"`
	}
}

// ToggleOutput reports the resulting global state.
type ToggleOutput struct {
	Body struct {
		Scope   string `json:"scope"`
		Enabled bool   `json:"enabled"`
	}
}

func registerOpsHandlers(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "restore-session",
		Method:      http.MethodPost,
		Path:        "/sessions/restore",
		Summary:     "Reopen the most recently closed tab in a window",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *RestoreInput) (*RestoreOutput, error) {
		if err := deps.History.StepBack(ctx, input.Body.WindowID); err != nil {
			return nil, mapErr(err)
		}
		out := &RestoreOutput{}
		out.Body.Mode = deps.History.Mode()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-sessions",
		Method:      http.MethodPost,
		Path:        "/sessions/refresh",
		Summary:     "Refresh the native session snapshot",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, _ *struct{}) (*RefreshOutput, error) {
		if err := deps.History.Refresh(ctx); err != nil {
			return nil, mapErr(err)
		}
		out := &RefreshOutput{}
		out.Body.Mode = deps.History.Mode()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-enabled",
		Method:      http.MethodPost,
		Path:        "/toggle",
		Summary:     "Toggle the runtime globally or for one tab",
		Tags:        []string{"Toggle"},
	}, func(ctx context.Context, input *ToggleInput) (*ToggleOutput, error) {
		out := &ToggleOutput{}
		if tabID := input.Body.TabID; tabID != "" {
			if err := deps.Broadcast.ToggleTab(ctx, tabID); err != nil {
				return nil, mapErr(err)
			}
			out.Body.Scope = "tab"
			out.Body.Enabled = deps.Broadcast.Enabled()
			return out, nil
		}

		enabled, err := deps.Broadcast.ToggleGlobal(ctx)
		if err != nil {
			// Per-tab fan-out failures are already on the feed; the flip
			// itself took effect.
			deps.Feed.Discard("api", "toggle fan-out", err)
		}
		out.Body.Scope = "global"
		out.Body.Enabled = enabled
		return out, nil
	})
}
