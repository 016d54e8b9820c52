// Package api is the coordinator's localhost surface: the WebSocket
// endpoint contexts connect their ports to, the one-shot message endpoint,
// an SSE event stream, and a typed read-only ops API over the state store.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zchee/chromium-vim-sub001/internal/broadcast"
	"github.com/zchee/chromium-vim-sub001/internal/dispatch"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/history"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/settings"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// Deps are the coordinator components the API exposes.
type Deps struct {
	Store      *state.Store
	Ports      *port.Registry
	Dispatcher *dispatch.Dispatcher
	History    *history.Service
	Broadcast  *broadcast.Controller
	Settings   *settings.Service
	Feed       *events.Feed
}

// NewServer builds the coordinator's HTTP handler.
func NewServer(deps Deps) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Coordinator API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/connect", deps.connectHandler())
	router.Post("/message", deps.messageHandler())
	router.Get("/events", events.SSEHandler(deps.Feed.Broker()))

	registerStateHandlers(api, deps)
	registerOpsHandlers(api, deps)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeMalformedPayload:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeInvalidTarget:
			return huma.Error404NotFound(coded.Message)
		case types.CodeUnsupportedCap:
			return huma.Error501NotImplemented(coded.Message)
		case types.CodeHostCall:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
