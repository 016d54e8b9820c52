package port

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

func newTestFeed() *events.Feed {
	return events.NewFeed(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

// pipePort returns a Port wired to an in-memory connection, plus the
// client end of that connection.
func pipePort(identity Identity, onClose func(*Port)) (*Port, net.Conn) {
	client, server := net.Pipe()
	return New(server, identity, onClose), client
}

func TestServeDeliversDecodedMessages(t *testing.T) {
	p, client := pipePort(Identity{Kind: KindContent, TabID: "t1"}, nil)
	defer p.Close()

	got := make(chan *types.Message, 2)
	go p.Serve(func(_ *Port, msg *types.Message) { got <- msg })

	if err := wsutil.WriteClientText(client, []byte(`{"type":"hello","url":"https://a.test/"}`)); err != nil {
		t.Fatalf("write = %v; want nil", err)
	}

	select {
	case msg := <-got:
		if msg.Tag() != "hello" {
			t.Fatalf("Tag() = %q; want hello", msg.Tag())
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestServeSkipsUndecodableFrames(t *testing.T) {
	p, client := pipePort(Identity{Kind: KindContent}, nil)
	defer p.Close()

	got := make(chan *types.Message, 2)
	go p.Serve(func(_ *Port, msg *types.Message) { got <- msg })

	if err := wsutil.WriteClientText(client, []byte(`{not json`)); err != nil {
		t.Fatalf("write = %v; want nil", err)
	}
	if err := wsutil.WriteClientText(client, []byte(`{"action":"getTab"}`)); err != nil {
		t.Fatalf("write = %v; want nil", err)
	}

	select {
	case msg := <-got:
		if msg.Tag() != "getTab" {
			t.Fatalf("Tag() = %q; want getTab after skipping bad frame", msg.Tag())
		}
	case <-time.After(time.Second):
		t.Fatal("good frame not delivered after bad frame")
	}
}

func TestSendReachesClient(t *testing.T) {
	p, client := pipePort(Identity{Kind: KindContent}, nil)
	defer p.Close()

	read := make(chan []byte, 1)
	go func() {
		data, err := wsutil.ReadServerText(client)
		if err == nil {
			read <- data
		}
	}()

	if err := p.Send(map[string]any{"type": "sendSettings", "settings": map[string]any{}}); err != nil {
		t.Fatalf("Send() = %v; want nil", err)
	}

	select {
	case data := <-read:
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("client payload not json: %v", err)
		}
		if decoded["type"] != "sendSettings" {
			t.Fatalf("payload = %v; want sendSettings", decoded)
		}
	case <-time.After(time.Second):
		t.Fatal("client saw no frame")
	}
}

func TestCloseFiresOnCloseOnce(t *testing.T) {
	var calls atomic.Int32
	p, client := pipePort(Identity{}, func(*Port) { calls.Add(1) })

	done := make(chan struct{})
	go func() {
		p.Serve(func(*Port, *types.Message) {})
		close(done)
	}()

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not exit on client close")
	}
	p.Close()
	p.Close()

	if got := calls.Load(); got != 1 {
		t.Fatalf("onClose calls = %d; want 1", got)
	}
	if !p.Closed() {
		t.Fatal("Closed() = false; want true")
	}
}

func TestSendOnClosedPortFails(t *testing.T) {
	p, _ := pipePort(Identity{}, nil)
	p.Close()

	if err := p.Send(map[string]string{"type": "hideHud"}); err == nil {
		t.Fatal("Send() on closed port = nil; want error")
	}
}

func TestRegistryAddRemoveLookup(t *testing.T) {
	reg := NewRegistry(newTestFeed())

	p1, _ := pipePort(Identity{Kind: KindContent, TabID: "t1"}, nil)
	p2, _ := pipePort(Identity{Kind: KindCommandFrame, TabID: "t1"}, nil)
	p3, _ := pipePort(Identity{Kind: KindContent, TabID: "t2"}, nil)
	for _, p := range []*Port{p1, p2, p3} {
		reg.Add(p)
		defer p.Close()
	}

	if got := reg.Count(); got != 3 {
		t.Fatalf("Count() = %d; want 3", got)
	}
	if got := len(reg.ByTab("t1")); got != 2 {
		t.Fatalf("ByTab(t1) = %d ports; want 2", got)
	}
	cf := reg.ByTabKind("t1", KindCommandFrame)
	if len(cf) != 1 || cf[0].ID() != p2.ID() {
		t.Fatalf("ByTabKind(t1, commandframe) = %v; want p2", cf)
	}

	reg.Remove(p1.ID())
	if got := reg.Count(); got != 2 {
		t.Fatalf("Count() after remove = %d; want 2", got)
	}
	if _, ok := reg.Get(p1.ID()); ok {
		t.Fatal("removed port still resolvable")
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	reg := NewRegistry(newTestFeed())

	var healthy []net.Conn
	for _, tab := range []string{"t1", "t2"} {
		p, client := pipePort(Identity{Kind: KindContent, TabID: tab}, func(dead *Port) { reg.Remove(dead.ID()) })
		reg.Add(p)
		healthy = append(healthy, client)
		defer p.Close()
	}

	// The dead port's peer is gone but the registry does not know yet;
	// the failure surfaces during the sweep.
	dead, deadClient := pipePort(Identity{Kind: KindContent, TabID: "t3"}, func(p *Port) { reg.Remove(p.ID()) })
	reg.Add(dead)
	deadClient.Close()

	// Drain healthy clients so pipe writes complete.
	var wg sync.WaitGroup
	for _, client := range healthy {
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			if _, err := wsutil.ReadServerText(c); err != nil {
				t.Errorf("healthy client read = %v; want nil", err)
			}
		}(client)
	}

	sent, failed := reg.Broadcast(map[string]string{"type": "toggleEnabled"}, nil)
	wg.Wait()

	if sent != 2 || failed != 1 {
		t.Fatalf("Broadcast() = sent %d failed %d; want 2/1", sent, failed)
	}
}
