package events

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zchee/chromium-vim-sub001/internal/storage"
)

// Event is one coordinator occurrence: a tab lifecycle change, a toggle, a
// dispatch fault, or a best-effort error that was swallowed.
type Event struct {
	Time      time.Time      `json:"time"`
	Component string         `json:"component"`
	Kind      string         `json:"kind"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Feed is the single sink for everything the coordinator observes about
// itself. Every emitted event is counted, journaled, published to stream
// subscribers, and logged at debug. Discarded best-effort errors MUST go
// through Discard so they stay visible.
type Feed struct {
	journal *storage.Journal
	broker  *Broker
	logger  *slog.Logger

	mu       sync.Mutex
	counters map[string]int64
}

// NewFeed creates a Feed. journal may be nil to skip durable journaling.
func NewFeed(journal *storage.Journal, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		journal:  journal,
		broker:   NewBroker(),
		logger:   logger,
		counters: make(map[string]int64),
	}
}

// Broker exposes the stream fan-out for SSE subscriptions.
func (f *Feed) Broker() *Broker { return f.broker }

// Emit records one event.
func (f *Feed) Emit(component, kind string, fields map[string]any) {
	evt := Event{
		Time:      time.Now().UTC(),
		Component: component,
		Kind:      kind,
		Fields:    fields,
	}

	f.count(component + "." + kind)

	if f.journal != nil {
		if err := f.journal.Write(component, evt); err != nil {
			f.logger.Debug("journal write failed", "component", component, "kind", kind, "error", err)
		}
	}
	f.broker.Publish(evt)
	f.logger.Debug("event", "component", component, "kind", kind, "fields", fields)
}

// Discard records a best-effort error that is being dropped on purpose.
// This is the only sanctioned way to swallow an error.
func (f *Feed) Discard(component, op string, err error) {
	if err == nil {
		return
	}
	f.Emit(component, "discarded_error", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
}

func (f *Feed) count(key string) {
	f.mu.Lock()
	f.counters[key]++
	f.mu.Unlock()
}

// Counters returns a snapshot of event counts keyed component.kind.
func (f *Feed) Counters() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.counters))
	for k, v := range f.counters {
		out[k] = v
	}
	return out
}

// CounterKeys returns the known counter keys, sorted.
func (f *Feed) CounterKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.counters))
	for k := range f.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
