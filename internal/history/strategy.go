package history

import (
	"context"
	"log/slog"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// Strategy restores recently closed tabs one step at a time.
type Strategy interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	Refresh(ctx context.Context) error
	StepBack(ctx context.Context, windowID int64) error
}

// Options configures the history service.
type Options struct {
	// RetryFailedRestore keeps the native cursor on a failed slot.
	RetryFailedRestore bool
}

// Service owns the record mirror and the probed restore strategy. The
// probe happens once, in NewService; the decision holds until the process
// exits.
type Service struct {
	tracker  *Tracker
	strategy Strategy
	native   bool
}

// NewService probes the host's capability surface and wires the matching
// strategy. Hosts exposing a closed-session log get the native adapter and
// a non-archiving tracker (records stay current, history stays with the
// host); all others get the archiving tracker as both mirror and strategy.
func NewService(host browser.Host, store *state.Store, feed *events.Feed, opts Options) *Service {
	sessionLog, ok := browser.ProbeSessionLog(host)
	if !ok {
		feed.Emit("history", "capability_fallback", map[string]any{
			"code":   types.CodeUnsupportedCap,
			"reason": "host exposes no closed-session log",
		})
		slog.Info("closed-session log unavailable, using fallback tracker")
		tracker := NewTracker(host, store, feed, true)
		return &Service{tracker: tracker, strategy: tracker}
	}

	slog.Info("closed-session log available, using native adapter")
	return &Service{
		tracker:  NewTracker(host, store, feed, false),
		strategy: NewNativeAdapter(host, sessionLog, store, feed, opts.RetryFailedRestore),
		native:   true,
	}
}

// Mode names the active strategy.
func (s *Service) Mode() string { return s.strategy.Name() }

// Start starts the record mirror and the strategy.
func (s *Service) Start(ctx context.Context) error {
	if err := s.tracker.Start(ctx); err != nil {
		return err
	}
	if s.native {
		if err := s.strategy.Start(ctx); err != nil {
			s.tracker.Stop()
			return err
		}
	}
	return nil
}

// Stop stops the strategy and the mirror.
func (s *Service) Stop() {
	if s.native {
		s.strategy.Stop()
	}
	s.tracker.Stop()
}

// Refresh re-reads the host's closed-session log where one exists.
func (s *Service) Refresh(ctx context.Context) error {
	return s.strategy.Refresh(ctx)
}

// StepBack reopens the most recently closed tab for a window.
func (s *Service) StepBack(ctx context.Context, windowID int64) error {
	return s.strategy.StepBack(ctx, windowID)
}
