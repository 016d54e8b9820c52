// Package port implements the persistent duplex channels page contexts
// hold to the coordinator. A Port wraps one accepted WebSocket connection;
// the Registry tracks every live Port and fans messages out to them.
package port

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// Context kinds a connecting port may announce.
const (
	KindContent      = "content"
	KindCommandFrame = "commandframe"
	KindPopup        = "popup"
	KindOptions      = "options"
)

// Identity is what a connecting context announces about itself.
type Identity struct {
	Kind    string `json:"kind"`
	TabID   string `json:"tab_id,omitempty"`
	FrameID int64  `json:"frame_id,omitempty"`
	Top     bool   `json:"top,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Handler consumes one decoded message from a port.
type Handler func(p *Port, msg *types.Message)

// Port is one context's persistent channel. Sends are serialized by an
// internal write lock, so messages leave in call order; nothing orders
// sends across different ports.
type Port struct {
	id       string
	identity Identity
	conn     net.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
	once    sync.Once
	onClose func(*Port)
}

// New wraps an accepted connection. onClose fires exactly once, from
// whichever of Close or a read failure happens first.
func New(conn net.Conn, identity Identity, onClose func(*Port)) *Port {
	return &Port{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		onClose:  onClose,
	}
}

// ID returns the port's assigned identifier.
func (p *Port) ID() string { return p.id }

// Identity returns what the context announced at connect time.
func (p *Port) Identity() Identity { return p.identity }

// TabID is shorthand for the announced tab.
func (p *Port) TabID() string { return p.identity.TabID }

// Closed reports whether the port has been torn down.
func (p *Port) Closed() bool { return p.closed.Load() }

// Send marshals v and writes it as one text frame. Sending on a closed
// port fails without blocking.
func (p *Port) Send(v any) error {
	if p.closed.Load() {
		return fmt.Errorf("port %s: closed", p.id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("port %s: marshal: %w", p.id, err)
	}

	p.writeMu.Lock()
	err = wsutil.WriteServerText(p.conn, data)
	p.writeMu.Unlock()
	if err != nil {
		p.Close()
		return fmt.Errorf("port %s: write: %w", p.id, err)
	}
	return nil
}

// Serve reads frames until the connection dies, handing each decoded
// message to onMessage on the read goroutine. Frames that do not parse are
// skipped; the sender finds out only if it asked for a response.
func (p *Port) Serve(onMessage Handler) {
	defer p.Close()

	for {
		data, err := wsutil.ReadClientText(p.conn)
		if err != nil {
			slog.Debug("port read loop exit", "port", p.id, "error", err)
			return
		}

		msg, err := types.DecodeMessage(data)
		if err != nil {
			slog.Debug("port dropped undecodable frame", "port", p.id, "error", err)
			continue
		}
		onMessage(p, msg)
	}
}

// Close tears the port down. Idempotent.
func (p *Port) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		_ = p.conn.Close()
		if p.onClose != nil {
			p.onClose(p)
		}
	})
}
