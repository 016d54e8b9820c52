package port

import (
	"sync"

	"github.com/zchee/chromium-vim-sub001/internal/events"
)

// Registry tracks every live port. Connects register, disconnects
// unregister; nothing here is persisted.
type Registry struct {
	feed *events.Feed

	mu    sync.RWMutex
	ports map[string]*Port
}

// NewRegistry creates an empty Registry.
func NewRegistry(feed *events.Feed) *Registry {
	return &Registry{
		feed:  feed,
		ports: make(map[string]*Port),
	}
}

// Add registers a port.
func (r *Registry) Add(p *Port) {
	r.mu.Lock()
	r.ports[p.ID()] = p
	r.mu.Unlock()

	id := p.Identity()
	r.feed.Emit("port", "connected", map[string]any{
		"port": p.ID(),
		"kind": id.Kind,
		"tab":  id.TabID,
	})
}

// Remove unregisters a port. Unknown ports are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.ports[id]
	delete(r.ports, id)
	r.mu.Unlock()

	if ok {
		r.feed.Emit("port", "disconnected", map[string]any{"port": id})
	}
}

// Get returns a port by id.
func (r *Registry) Get(id string) (*Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.ports[id]
	return p, ok
}

// All returns every live port.
func (r *Registry) All() []*Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Port, 0, len(r.ports))
	for _, p := range r.ports {
		out = append(out, p)
	}
	return out
}

// ByTab returns the ports announced by one tab's contexts.
func (r *Registry) ByTab(tabID string) []*Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Port
	for _, p := range r.ports {
		if p.TabID() == tabID {
			out = append(out, p)
		}
	}
	return out
}

// ByTabKind returns one tab's ports of a given kind.
func (r *Registry) ByTabKind(tabID, kind string) []*Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Port
	for _, p := range r.ports {
		if p.TabID() == tabID && p.Identity().Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of live ports.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// Broadcast sends v to every port the filter accepts (nil accepts all).
// A failed send never stops the sweep; failures are reported to the feed
// and counted.
func (r *Registry) Broadcast(v any, filter func(*Port) bool) (sent, failed int) {
	for _, p := range r.All() {
		if filter != nil && !filter(p) {
			continue
		}
		if err := p.Send(v); err != nil {
			failed++
			r.feed.Discard("port", "broadcast send", err)
			continue
		}
		sent++
	}
	return sent, failed
}
