// Package broadcast owns the process-wide enabled flag and fans toggle
// state out to page contexts. A toggle is two per-tab operations, a channel
// message and an icon update, and each tab fails independently: errors are
// collected and reported together, never allowed to stop the sweep.
package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/zchee/chromium-vim-sub001/internal/blacklist"
	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/state"
)

// Controller flips and propagates the enabled flag.
type Controller struct {
	store   *state.Store
	host    browser.Host
	ports   *port.Registry
	matcher *blacklist.Matcher
	feed    *events.Feed
}

// NewController wires the controller to its collaborators.
func NewController(store *state.Store, host browser.Host, ports *port.Registry, matcher *blacklist.Matcher, feed *events.Feed) *Controller {
	return &Controller{
		store:   store,
		host:    host,
		ports:   ports,
		matcher: matcher,
		feed:    feed,
	}
}

// Enabled reports the current flag.
func (c *Controller) Enabled() bool { return c.store.Enabled() }

// Blacklisted reports whether a URL is blacklisted.
func (c *Controller) Blacklisted(url string) bool {
	return c.matcher.Blacklisted(url)
}

// ToggleTab sends the current enabled state to one tab's contexts and sets
// that tab's icon from its blacklist status. The flag itself is untouched:
// single-target toggles refresh one tab, they do not flip the process.
func (c *Controller) ToggleTab(ctx context.Context, tabID string) error {
	enabled := c.store.Enabled()

	var errs []error
	for _, p := range c.ports.ByTab(tabID) {
		if err := p.Send(map[string]any{"action": "toggleEnabled", "enabled": enabled}); err != nil {
			errs = append(errs, fmt.Errorf("port %s: %w", p.ID(), err))
		}
	}

	icon := browser.IconDisabled
	if enabled {
		icon = browser.IconEnabled
		if tab, ok := c.store.ActiveTab(tabID); ok && c.matcher.Blacklisted(tab.URL) {
			icon = browser.IconDisabled
		}
	}
	if err := c.host.SetIcon(ctx, tabID, icon); err != nil {
		errs = append(errs, fmt.Errorf("icon for tab %s: %w", tabID, err))
	}

	return errors.Join(errs...)
}

// ToggleGlobal flips the flag and pushes the new state to every open tab.
// Blacklisted tabs keep their disabled icon and receive no toggle message.
// Each tab is independent; the joined error reports every failure after
// the whole sweep has run.
func (c *Controller) ToggleGlobal(ctx context.Context) (bool, error) {
	enabled := c.store.FlipEnabled()
	c.feed.Emit("broadcast", "toggle_global", map[string]any{"enabled": enabled})

	var errs []error
	for _, tab := range c.store.ActiveTabs() {
		if c.matcher.Blacklisted(tab.URL) {
			if err := c.host.SetIcon(ctx, tab.ID, browser.IconDisabled); err != nil {
				errs = append(errs, fmt.Errorf("icon for tab %s: %w", tab.ID, err))
			}
			continue
		}

		for _, p := range c.ports.ByTab(tab.ID) {
			if err := p.Send(map[string]any{"action": "toggleEnabled", "enabled": enabled}); err != nil {
				errs = append(errs, fmt.Errorf("port %s: %w", p.ID(), err))
			}
		}

		icon := browser.IconDisabled
		if enabled {
			icon = browser.IconEnabled
		}
		if err := c.host.SetIcon(ctx, tab.ID, icon); err != nil {
			errs = append(errs, fmt.Errorf("icon for tab %s: %w", tab.ID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		c.feed.Discard("broadcast", "toggle fan-out", err)
		return enabled, err
	}
	return enabled, nil
}
