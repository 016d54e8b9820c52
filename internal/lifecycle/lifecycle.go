// Package lifecycle distinguishes first install from version updates and
// re-applies content logic when an update lands. Outside a full process
// restart this is the only path that force-reloads content logic.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/storage"
)

// RecordLifecycle is the durable record key for install bookkeeping.
const RecordLifecycle = "lifecycle"

// record is what survives between process runs.
type record struct {
	Version      string `json:"version"`
	WelcomeTabID string `json:"welcome_tab_id,omitempty"`
}

// Options configures the manager.
type Options struct {
	// Version is the running build's version string; a change against the
	// stored record means update.
	Version string

	// WelcomeURL opens in a new tab on first install.
	WelcomeURL string

	// ChangelogURL opens on update when OpenChangelog is set.
	ChangelogURL  string
	OpenChangelog bool

	// Bootstrap is the content script injected into complete tabs after an
	// update.
	Bootstrap string

	// RefreshSettings is the settings collaborator's refresh hook, run on
	// update before reinjection. May be nil.
	RefreshSettings func(ctx context.Context) error
}

// Manager runs the install/update sequence once at startup.
type Manager struct {
	host    browser.Host
	records *storage.RecordStore
	feed    *events.Feed
	opts    Options
}

// NewManager wires the manager.
func NewManager(host browser.Host, records *storage.RecordStore, feed *events.Feed, opts Options) *Manager {
	return &Manager{host: host, records: records, feed: feed, opts: opts}
}

// Startup reads the lifecycle record and runs whichever of install or
// update applies. Both paths are best-effort after the record write: a tab
// that cannot be opened or injected never fails startup.
func (m *Manager) Startup(ctx context.Context) error {
	var rec record
	err := m.records.Load(RecordLifecycle, &rec)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return m.install(ctx)
	case err != nil:
		return err
	}

	if rec.Version == m.opts.Version {
		slog.Debug("lifecycle: version unchanged", "version", rec.Version)
		return nil
	}
	return m.update(ctx, rec)
}

func (m *Manager) install(ctx context.Context) error {
	rec := record{Version: m.opts.Version}

	if m.opts.WelcomeURL != "" {
		tab, err := m.host.CreateTab(ctx, browser.CreateTabOptions{URL: m.opts.WelcomeURL, Active: true})
		if err != nil {
			m.feed.Discard("lifecycle", "open welcome view", err)
		} else {
			rec.WelcomeTabID = tab.ID
		}
	}

	if err := m.records.Save(RecordLifecycle, rec); err != nil {
		return err
	}
	m.feed.Emit("lifecycle", "installed", map[string]any{"version": rec.Version})
	return nil
}

func (m *Manager) update(ctx context.Context, prev record) error {
	if m.opts.RefreshSettings != nil {
		if err := m.opts.RefreshSettings(ctx); err != nil {
			m.feed.Discard("lifecycle", "settings refresh", err)
		}
	}

	if m.opts.OpenChangelog && m.opts.ChangelogURL != "" {
		if _, err := m.host.CreateTab(ctx, browser.CreateTabOptions{URL: m.opts.ChangelogURL, Active: true}); err != nil {
			m.feed.Discard("lifecycle", "open changelog view", err)
		}
	}

	reinjected, skipped := m.Reinject(ctx)

	rec := record{Version: m.opts.Version}
	if err := m.records.Save(RecordLifecycle, rec); err != nil {
		return err
	}
	m.feed.Emit("lifecycle", "updated", map[string]any{
		"from":       prev.Version,
		"to":         rec.Version,
		"reinjected": reinjected,
		"skipped":    skipped,
	})
	return nil
}

// Reinject applies the bootstrap script to every tab whose load state is
// complete. Tabs still loading pick the script up from their own load
// path; privileged pages reject injection, which is expected and logged at
// debug only.
func (m *Manager) Reinject(ctx context.Context) (reinjected, skipped int) {
	if m.opts.Bootstrap == "" {
		return 0, 0
	}

	tabs, err := m.host.Tabs(ctx)
	if err != nil {
		m.feed.Discard("lifecycle", "enumerate tabs for reinjection", err)
		return 0, 0
	}

	for _, tab := range tabs {
		if tab.Status != "complete" {
			skipped++
			continue
		}
		if err := m.host.Inject(ctx, tab.ID, m.opts.Bootstrap); err != nil {
			slog.Debug("reinjection rejected", "tab", tab.ID, "url", tab.URL, "error", err)
			skipped++
			continue
		}
		reinjected++
	}
	return reinjected, skipped
}
