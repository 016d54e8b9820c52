// Package fetch performs HTTP requests on behalf of page contexts. Pages
// cannot reach cross-origin resources themselves; they ask the coordinator
// over the httpRequest action and the coordinator fetches for them. Every
// in-flight request is registered so cancelAllWebRequests can abort the
// whole set at once.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

const maxBodyBytes = 8 << 20

// Service fetches URLs for contexts and tracks what is in flight.
type Service struct {
	client *http.Client
	feed   *events.Feed

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewService creates the fetcher. client may be nil to use the default.
func NewService(client *http.Client, feed *events.Feed) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{
		client:   client,
		feed:     feed,
		inflight: make(map[string]context.CancelFunc),
	}
}

// Do issues one GET and returns the response body as text. The request is
// registered until it finishes, so a concurrent CancelAll aborts it.
func (s *Service) Do(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", types.NewError(types.CodeMalformedPayload, "httpRequest needs a url", nil)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	id := s.register(cancel)
	defer s.unregister(id)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", types.NewError(types.CodeMalformedPayload, fmt.Sprintf("bad url %q", url), err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", types.NewError(types.CodeHostCall, "fetch "+url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", types.NewError(types.CodeHostCall, "read body of "+url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", types.NewError(types.CodeHostCall, fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode), nil)
	}
	return string(body), nil
}

func (s *Service) register(cancel context.CancelFunc) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.inflight[id] = cancel
	s.mu.Unlock()
	return id
}

func (s *Service) unregister(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// InFlight returns the number of registered requests.
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// CancelAll aborts every in-flight request and reports how many were
// cancelled. Requests observe the cancellation as a failed fetch.
func (s *Service) CancelAll() int {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.inflight))
	for id, cancel := range s.inflight {
		cancels = append(cancels, cancel)
		delete(s.inflight, id)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		s.feed.Emit("fetch", "cancel_all", map[string]any{"cancelled": len(cancels)})
	}
	return len(cancels)
}
