package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zchee/chromium-vim-sub001/internal/blacklist"
	"github.com/zchee/chromium-vim-sub001/internal/broadcast"
	"github.com/zchee/chromium-vim-sub001/internal/browser/browsertest"
	"github.com/zchee/chromium-vim-sub001/internal/dispatch"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/fetch"
	"github.com/zchee/chromium-vim-sub001/internal/history"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/settings"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/storage"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

func newTestServer(t *testing.T) (*httptest.Server, Deps, *browsertest.FakeHost) {
	t.Helper()

	feed := events.NewFeed(nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	records, err := storage.NewRecordStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordStore() = %v; want nil", err)
	}
	store, err := state.NewStore(records)
	if err != nil {
		t.Fatalf("NewStore() = %v; want nil", err)
	}
	matcher, err := blacklist.NewMatcher(blacklist.RulesFile{})
	if err != nil {
		t.Fatalf("NewMatcher() = %v; want nil", err)
	}
	host := browsertest.NewFakeHost()
	ports := port.NewRegistry(feed)
	cfg, err := settings.NewService(records, nil, ports, feed)
	if err != nil {
		t.Fatalf("settings.NewService() = %v; want nil", err)
	}

	hist := history.NewService(host, store, feed, history.Options{})
	bcast := broadcast.NewController(store, host, ports, matcher, feed)
	dispatcher, err := dispatch.NewDispatcher(dispatch.Deps{
		Store:     store,
		Host:      host,
		Ports:     ports,
		History:   hist,
		Broadcast: bcast,
		Settings:  cfg,
		Fetch:     fetch.NewService(nil, feed),
		Feed:      feed,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() = %v; want nil", err)
	}

	deps := Deps{
		Store:      store,
		Ports:      ports,
		Dispatcher: dispatcher,
		History:    hist,
		Broadcast:  bcast,
		Settings:   cfg,
		Feed:       feed,
	}
	srv := httptest.NewServer(NewServer(deps))
	t.Cleanup(srv.Close)
	return srv, deps, host
}

func postMessage(t *testing.T, srv *httptest.Server, body string) types.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /message status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	var out types.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestMessageEchoRoundtrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	out := postMessage(t, srv, `{"action":"echoRequest","request":{"n":7}}`)
	if !out.Success {
		t.Fatalf("echoRequest failed: %s", out.Error)
	}
	if !bytes.Contains(out.Data, []byte(`"n":7`)) {
		t.Fatalf("echo data = %s; want payload echoed back", out.Data)
	}
}

func TestMessageUnknownActionFails(t *testing.T) {
	srv, _, _ := newTestServer(t)

	out := postMessage(t, srv, `{"action":"noSuchAction"}`)
	if out.Success {
		t.Fatal("unknown action reported success")
	}
	if !strings.Contains(out.Error, "noSuchAction") {
		t.Fatalf("error = %q; want it to name the action", out.Error)
	}
}

func TestMessageMalformedBodyFails(t *testing.T) {
	srv, _, _ := newTestServer(t)

	out := postMessage(t, srv, `{not json`)
	if out.Success {
		t.Fatal("malformed body reported success")
	}
}

func TestStateTabs(t *testing.T) {
	srv, deps, _ := newTestServer(t)
	deps.Store.UpsertActiveTab(types.Tab{ID: "t1", WindowID: 1, URL: "https://example.com/"})

	resp, err := http.Get(srv.URL + "/state/tabs")
	if err != nil {
		t.Fatalf("GET /state/tabs: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	var out struct {
		Tabs []types.Tab `json:"tabs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(out.Tabs) != 1 || out.Tabs[0].ID != "t1" {
		t.Fatalf("tabs = %+v; want the single upserted tab", out.Tabs)
	}
}

func TestToggleGlobalFlipsFlag(t *testing.T) {
	srv, deps, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/toggle", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /toggle: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	var out struct {
		Scope   string `json:"scope"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out.Scope != "global" {
		t.Fatalf("scope = %q; want global", out.Scope)
	}
	if out.Enabled {
		t.Fatal("first toggle should disable the default-enabled flag")
	}
	if deps.Store.Enabled() {
		t.Fatal("store still reports enabled after toggle")
	}
}

func TestRestoreReopensClosedTab(t *testing.T) {
	srv, deps, host := newTestServer(t)

	deps.Store.UpsertActiveTab(types.Tab{ID: "t1", WindowID: 3, URL: "https://closed.example/"})
	if _, ok := deps.Store.ArchiveRemovedTab("t1"); !ok {
		t.Fatal("ArchiveRemovedTab() = false; want true")
	}

	resp, err := http.Post(srv.URL+"/sessions/restore", "application/json", strings.NewReader(`{"window_id":3}`))
	if err != nil {
		t.Fatalf("POST /sessions/restore: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
	created := host.CreatedTabs()
	if len(created) != 1 || created[0].URL != "https://closed.example/" {
		t.Fatalf("created tabs = %+v; want the archived URL reopened", created)
	}
}
