//go:build integration

// Package integration exercises a running coordinator over its HTTP and
// WebSocket surface. Point COORDINATOR_ADDR at a live instance (a real
// browser must be attached) and run with -tags integration.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	WSURL   string
	Client  *http.Client
}

func TestMain(m *testing.M) {
	addr := os.Getenv("COORDINATOR_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8333"
	}
	env = &Env{
		BaseURL: "http://" + addr,
		WSURL:   "ws://" + addr,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}

	resp, err := env.Client.Get(env.BaseURL + "/state/counters")
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinator not reachable at %s: %v\n", env.BaseURL, err)
		os.Exit(1)
	}
	resp.Body.Close()

	os.Exit(m.Run())
}

type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func postMessage(t *testing.T, body string) response {
	t.Helper()
	resp, err := env.Client.Post(env.BaseURL+"/message", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /message: %v", err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestEchoRequest(t *testing.T) {
	out := postMessage(t, `{"action":"echoRequest","request":{"probe":true}}`)
	if !out.Success {
		t.Fatalf("echoRequest failed: %s", out.Error)
	}
}

func TestStateTabsListsLiveTabs(t *testing.T) {
	resp, err := env.Client.Get(env.BaseURL + "/state/tabs")
	if err != nil {
		t.Fatalf("GET /state/tabs: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	var out struct {
		Tabs []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"tabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(out.Tabs) == 0 {
		t.Fatal("coordinator mirrors no tabs; is a browser attached?")
	}
}

func TestConnectAndHello(t *testing.T) {
	q := url.Values{}
	q.Set("kind", "content")
	q.Set("tab", "integration-probe")

	conn, _, _, err := ws.Dial(t.Context(), env.WSURL+"/connect?"+q.Encode())
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	if err := wsutil.WriteClientText(conn, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	// hello answers with the settings snapshot and the toggle state.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read hello reply: %v", err)
	}
	if !strings.Contains(string(frame), "sendSettings") && !strings.Contains(string(frame), "toggleEnabled") {
		t.Fatalf("hello reply = %s; want settings or toggle frame", frame)
	}
}

func TestToggleRoundtrip(t *testing.T) {
	flip := func() bool {
		t.Helper()
		resp, err := env.Client.Post(env.BaseURL+"/toggle", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("POST /toggle: %v", err)
		}
		defer resp.Body.Close()
		var out struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return out.Enabled
	}

	first := flip()
	second := flip()
	if first == second {
		t.Fatalf("two toggles returned the same state %v; want a flip and a flip back", first)
	}
}
