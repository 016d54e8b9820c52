package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gobwas/ws"

	"github.com/zchee/chromium-vim-sub001/internal/dispatch"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

const maxOneShotBody = 1 << 20

// connectHandler upgrades a context's connection to a persistent port.
// The context announces itself through query parameters; the port lives
// until either side closes, and teardown discards any dispatch work still
// pending for it.
func (d Deps) connectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromQuery(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		p := port.New(conn, identity, func(p *port.Port) {
			d.Ports.Remove(p.ID())
			d.Dispatcher.PortClosed(p.ID())
		})
		d.Ports.Add(p)

		go p.Serve(d.Dispatcher.DispatchChannel)
	}
}

func identityFromQuery(r *http.Request) port.Identity {
	q := r.URL.Query()
	id := port.Identity{
		Kind:  q.Get("kind"),
		TabID: q.Get("tab"),
		URL:   q.Get("url"),
	}
	if id.Kind == "" {
		id.Kind = port.KindContent
	}
	if v := q.Get("frame"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			id.FrameID = n
		}
	}
	if v := q.Get("top"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			id.Top = b
		}
	}
	return id
}

// messageHandler resolves a one-shot message to exactly one response
// envelope. Unknown actions answer with a failure envelope instead of an
// HTTP error so senders never have to parse two shapes.
func (d Deps) messageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxOneShotBody))
		if err != nil {
			writeResponse(w, types.Fail(fmt.Errorf("read message: %w", err)))
			return
		}

		msg, err := types.DecodeMessage(body)
		if err != nil {
			writeResponse(w, types.Fail(err))
			return
		}

		sender := dispatch.Sender{TabID: r.URL.Query().Get("tab")}
		resp, handled := d.Dispatcher.DispatchAction(r.Context(), msg, sender)
		if !handled {
			writeResponse(w, types.Fail(fmt.Errorf("unknown action %q", msg.Tag())))
			return
		}
		writeResponse(w, resp)
	}
}

func writeResponse(w http.ResponseWriter, resp types.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Debug("one-shot response write failed", "error", err)
	}
}
